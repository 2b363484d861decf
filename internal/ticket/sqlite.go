package ticket

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Greesan/babysitter/pkg/protocol"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ticket store: wal: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			status        TEXT NOT NULL DEFAULT 'pending',
			session_id    TEXT NOT NULL DEFAULT '',
			turn_count    INTEGER NOT NULL DEFAULT 0,
			conversation  TEXT NOT NULL DEFAULT '[]',
			user_response TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
		CREATE INDEX IF NOT EXISTS idx_tickets_created ON tickets(created_at);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(t *protocol.Ticket) error {
	conversation, err := json.Marshal(t.Conversation)
	if err != nil {
		return fmt.Errorf("ticket store: save: marshal conversation: %w", err)
	}
	if t.Conversation == nil {
		conversation = []byte("[]")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO tickets (id, name, status, session_id, turn_count, conversation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, status=excluded.status, session_id=excluded.session_id,
			turn_count=excluded.turn_count, conversation=excluded.conversation, updated_at=excluded.updated_at
	`, t.ID, t.Name, string(t.Status), t.SessionID, t.TurnCount, string(conversation),
		t.CreatedAt.Format(time.RFC3339Nano), time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("ticket store: save: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(id string) (*protocol.Ticket, error) {
	row := s.db.QueryRow(`SELECT id, name, status, session_id, turn_count, conversation, created_at, updated_at FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("ticket %q not found", id)
		}
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) List(filter Filter) ([]*protocol.Ticket, error) {
	query := "SELECT id, name, status, session_id, turn_count, conversation, created_at, updated_at FROM tickets WHERE 1=1"
	var args []any

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	defer rows.Close()

	var tickets []*protocol.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: list scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// ClaimOldestPending selects the oldest pending ticket and moves it to
// planning in one write transaction. The UPDATE is guarded on status, so a
// ticket claimed by a concurrent caller between SELECT and UPDATE is not
// claimed twice; the losing caller retries against the next candidate.
func (s *SQLiteStore) ClaimOldestPending() (*protocol.Ticket, error) {
	for {
		row := s.db.QueryRow(`SELECT id, session_id FROM tickets WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT 1`,
			string(protocol.StatusPending))
		var id, sessionID string
		if err := row.Scan(&id, &sessionID); err != nil {
			if err == sql.ErrNoRows {
				return nil, nil
			}
			return nil, fmt.Errorf("ticket store: claim: %w", err)
		}

		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		res, err := s.db.Exec(`UPDATE tickets SET status = ?, session_id = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(protocol.StatusPlanning), sessionID, time.Now().Format(time.RFC3339Nano),
			id, string(protocol.StatusPending))
		if err != nil {
			return nil, fmt.Errorf("ticket store: claim: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			// Lost the race for this candidate; try the next one.
			continue
		}
		return s.Get(id)
	}
}

func (s *SQLiteStore) UpdateStatus(id string, status protocol.TicketStatus) error {
	res, err := s.db.Exec(`UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("ticket store: update status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("ticket %q not found", id)
	}
	return nil
}

// AppendTurn reads the conversation array, appends the turn, and writes the
// new array plus the matching turn_count in one transaction.
func (s *SQLiteStore) AppendTurn(id string, turn protocol.Turn) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("ticket store: append turn: %w", err)
	}
	defer tx.Rollback()

	var raw string
	if err := tx.QueryRow(`SELECT conversation FROM tickets WHERE id = ?`, id).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("ticket %q not found", id)
		}
		return fmt.Errorf("ticket store: append turn: %w", err)
	}

	var turns []protocol.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return fmt.Errorf("ticket store: append turn: corrupt conversation: %w", err)
	}
	turns = append(turns, turn)

	updated, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("ticket store: append turn: marshal: %w", err)
	}

	if _, err := tx.Exec(`UPDATE tickets SET conversation = ?, turn_count = ?, updated_at = ? WHERE id = ?`,
		string(updated), len(turns), time.Now().Format(time.RFC3339Nano), id); err != nil {
		return fmt.Errorf("ticket store: append turn: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ReadConversation(id string) ([]protocol.Turn, error) {
	var raw string
	err := s.db.QueryRow(`SELECT conversation FROM tickets WHERE id = ?`, id).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("ticket %q not found", id)
		}
		return nil, fmt.Errorf("ticket store: read conversation: %w", err)
	}

	var turns []protocol.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, fmt.Errorf("ticket store: read conversation: corrupt: %w", err)
	}
	return turns, nil
}

func (s *SQLiteStore) SetUserResponse(id, response string) error {
	res, err := s.db.Exec(`UPDATE tickets SET user_response = ?, updated_at = ? WHERE id = ?`,
		response, time.Now().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("ticket store: set user response: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("ticket %q not found", id)
	}
	return nil
}

// TakeUserResponse reads and clears the mailbox field in one transaction so
// a response is consumed by at most one poll.
func (s *SQLiteStore) TakeUserResponse(id string) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("ticket store: take user response: %w", err)
	}
	defer tx.Rollback()

	var response string
	if err := tx.QueryRow(`SELECT user_response FROM tickets WHERE id = ?`, id).Scan(&response); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("ticket %q not found", id)
		}
		return "", fmt.Errorf("ticket store: take user response: %w", err)
	}
	if response == "" {
		return "", tx.Commit()
	}

	if _, err := tx.Exec(`UPDATE tickets SET user_response = '' WHERE id = ?`, id); err != nil {
		return "", fmt.Errorf("ticket store: take user response: %w", err)
	}
	return response, tx.Commit()
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(row scannable) (*protocol.Ticket, error) {
	var t protocol.Ticket
	var status, conversation, createdAt, updatedAt string

	err := row.Scan(&t.ID, &t.Name, &status, &t.SessionID, &t.TurnCount, &conversation, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.Status = protocol.TicketStatus(status)
	if err := json.Unmarshal([]byte(conversation), &t.Conversation); err != nil {
		return nil, fmt.Errorf("corrupt conversation: %w", err)
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("bad updated_at: %w", err)
	}
	return &t, nil
}
