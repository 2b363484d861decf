// Command babysitterctl is the operator CLI for the babysitter daemon.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Greesan/babysitter/internal/config"
	"github.com/Greesan/babysitter/pkg/protocol"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "health":
		cmdHealth()
	case "tickets":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: babysitterctl tickets <list|show|create|done>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdTicketsList(os.Args[3:])
		case "show":
			requireArg(3, "babysitterctl tickets show <id>")
			cmdTicketsShow(os.Args[3])
		case "create":
			cmdTicketsCreate(os.Args[3:])
		case "done":
			requireArg(3, "babysitterctl tickets done <id>")
			cmdTicketsDone(os.Args[3])
		default:
			fmt.Fprintf(os.Stderr, "unknown tickets subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "jobs":
		if len(os.Args) < 4 || os.Args[2] != "show" {
			fmt.Fprintln(os.Stderr, "usage: babysitterctl jobs show <id>")
			os.Exit(1)
		}
		cmdJobsShow(os.Args[3])
	case "respond":
		cmdRespond(os.Args[2:])
	case "watch":
		cmdWatch()
	case "trigger":
		cmdTrigger(os.Args[2:])
	case "logs":
		cmdLogs(os.Args[2:])
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: babysitterctl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func requireArg(n int, usage string) {
	if len(os.Args) <= n {
		fmt.Fprintln(os.Stderr, "usage: "+usage)
		os.Exit(1)
	}
}

// --- commands ---

func cmdHealth() {
	body, err := apiGet("/api/health")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(body))
}

func cmdTicketsList(args []string) {
	fs := flag.NewFlagSet("tickets list", flag.ExitOnError)
	status := fs.String("status", "", "Filter by status (pending|planning|working|requesting_input|completed|error|done)")
	limit := fs.Int("limit", 50, "Max results")
	fs.Parse(args)

	query := fmt.Sprintf("?limit=%d", *limit)
	if *status != "" {
		query += "&status=" + *status
	}

	body, err := apiGet("/api/tickets" + query)
	if err != nil {
		fatal(err)
	}
	var tickets []protocol.Ticket
	json.Unmarshal(body, &tickets)
	for _, t := range tickets {
		fmt.Printf("%-12s %-17s %3d turns  %s\n", t.ID, t.Status, t.TurnCount, t.Name)
	}
}

func cmdTicketsShow(id string) {
	body, err := apiGet("/api/tickets/" + id)
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdTicketsCreate(args []string) {
	fs := flag.NewFlagSet("tickets create", flag.ExitOnError)
	name := fs.String("name", "", "Ticket name (required)")
	description := fs.String("description", "", "Ticket description")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: --name is required")
		os.Exit(1)
	}

	body, err := apiPost("/api/tickets", map[string]string{
		"name":        *name,
		"description": *description,
	})
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdTicketsDone(id string) {
	body, err := apiPost("/api/tickets/"+id+"/done", nil)
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdJobsShow(id string) {
	body, err := apiGet("/api/jobs/" + id)
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

// cmdRespond pushes an answer over the websocket and waits for the ack.
func cmdRespond(args []string) {
	fs := flag.NewFlagSet("respond", flag.ExitOnError)
	session := fs.String("session", "", "Session ID of the waiting question (required)")
	message := fs.String("message", "", "Response text (required)")
	fs.Parse(args)

	if *session == "" || *message == "" {
		fmt.Fprintln(os.Stderr, "error: --session and --message are required")
		os.Exit(1)
	}

	conn, err := dialWS()
	if err != nil {
		fatal(err)
	}
	defer conn.Close()

	err = conn.WriteJSON(protocol.ClientMessage{
		Type:      "user_response",
		SessionID: *session,
		Response:  *message,
	})
	if err != nil {
		fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var ctl protocol.ControlMessage
		if err := conn.ReadJSON(&ctl); err != nil {
			fatal(fmt.Errorf("no ack received: %w", err))
		}
		if ctl.Type == "ack" && ctl.SessionID == *session {
			fmt.Println("response delivered")
			return
		}
	}
}

// cmdWatch streams events until interrupted.
func cmdWatch() {
	conn, err := dialWS()
	if err != nil {
		fatal(err)
	}
	defer conn.Close()

	for {
		var event protocol.Event
		if err := conn.ReadJSON(&event); err != nil {
			fatal(err)
		}
		line := fmt.Sprintf("%s  %-15s ticket=%s", event.Timestamp.Format(time.TimeOnly), event.Type, event.TicketID)
		if event.Content != "" {
			line += "  " + event.Content
		}
		if event.Error != "" {
			line += "  error=" + event.Error
		}
		fmt.Println(line)
	}
}

func cmdTrigger(args []string) {
	fs := flag.NewFlagSet("trigger", flag.ExitOnError)
	pageID := fs.String("page", "manual", "Page ID to report")
	databaseID := fs.String("database", "manual", "Database ID to report")
	eventType := fs.String("event", "manual.trigger", "Event type to report")
	fs.Parse(args)

	body, err := apiPost("/webhook", map[string]string{
		"page_id":     *pageID,
		"database_id": *databaseID,
		"event_type":  *eventType,
	})
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	level := fs.String("level", "", "Minimum level (debug|info|warn|error)")
	limit := fs.Int("limit", 100, "Max entries")
	fs.Parse(args)

	query := fmt.Sprintf("?limit=%d", *limit)
	if *level != "" {
		query += "&level=" + *level
	}
	body, err := apiGet("/api/logs" + query)
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdConfigValidate(path string) {
	if _, err := config.Load(path); err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func baseURL() string {
	return envOr("BABYSITTER_URL", "http://localhost:8080")
}

func apiGet(path string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL()+path, nil)
	if err != nil {
		return nil, err
	}
	return doRequest(req)
}

func apiPost(path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, baseURL()+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return doRequest(req)
}

func doRequest(req *http.Request) ([]byte, error) {
	if key := os.Getenv("BABYSITTER_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func dialWS() (*websocket.Conn, error) {
	url := strings.Replace(baseURL(), "http", "ws", 1) + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("babysitterctl: ticket orchestration CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  health                    Check daemon health")
	fmt.Println("  tickets list              List tickets (--status, --limit)")
	fmt.Println("  tickets show <id>         Show ticket with conversation")
	fmt.Println("  tickets create            Create a ticket (--name, --description)")
	fmt.Println("  tickets done <id>         Mark a ticket done")
	fmt.Println("  jobs show <id>            Show a job")
	fmt.Println("  respond                   Answer a waiting question (--session, --message)")
	fmt.Println("  watch                     Stream events")
	fmt.Println("  trigger                   Fire a manual webhook (--page, --database, --event)")
	fmt.Println("  logs                      Fetch recent daemon logs (--level, --limit)")
	fmt.Println("  config validate <path>    Validate a config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  BABYSITTER_URL       Daemon URL (default: http://localhost:8080)")
	fmt.Println("  BABYSITTER_API_KEY   Bearer key for /api/* endpoints")
}
