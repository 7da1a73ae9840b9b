// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// fyp-ctl is a command-line tool for controlling a running fyp daemon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/wingedpig/fyp/internal/app"
	"github.com/wingedpig/fyp/internal/config"
	"github.com/wingedpig/fyp/pkg/client"
)

var (
	version    = "0.9"
	apiURL     = ""
	jsonOutput = false

	apiClient *client.Client
)

func main() {
	if env := os.Getenv("FYP_API"); env != "" {
		apiURL = strings.TrimSuffix(env, "/")
	}
	if apiURL == "" {
		apiURL = discoverAPI()
	}

	// Parse global flags and filter them out
	var filteredArgs []string
	for _, arg := range os.Args[1:] {
		if arg == "-json" {
			jsonOutput = true
		} else {
			filteredArgs = append(filteredArgs, arg)
		}
	}

	apiClient = client.New(apiURL, client.WithToken(loadToken()))

	if len(filteredArgs) < 1 {
		printUsage()
		os.Exit(1)
	}

	cmd := filteredArgs[0]
	args := filteredArgs[1:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(args)
	case "sessions":
		err = cmdSessions(args)
	case "inbox":
		err = cmdInbox(args)
	case "orch":
		err = cmdOrch(args)
	case "events":
		err = cmdEvents(args)
	case "commands":
		err = cmdCommands(args)
	case "pair":
		err = cmdPair(args)
	case "version", "-v", "--version":
		fmt.Printf("fyp-ctl %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`fyp-ctl - Control a running fyp daemon

Usage:
  fyp-ctl [-json] <command> [arguments]

Global Flags:
  -json          Output in JSON format

Environment:
  FYP_API        Base URL of the fyp API (default: read from the daemon's pid file,
                 falling back to http://localhost:4112)
  FYP_TOKEN      API token (default: read from ~/.config/fyp/token)

Commands:
  status                       Show daemon status and counts

  sessions                     List sessions
  sessions show <id>           Show one session
  sessions input <id> <text>   Type text into a session (a newline is appended)
  sessions interrupt <id>      Send Ctrl-C to a session
  sessions kill <id>           Send SIGKILL to a session
  sessions delete <id> [-f]    Delete a session (-f to force while running)
  sessions output <id> [-n N]  Show the transcript tail (N bytes, default 16384)

  inbox                        List open attention items
  inbox -all                   List all attention items
  inbox respond <id> <option>  Answer an item with one of its option ids
  inbox dismiss <id>           Dismiss an item without answering

  orch                         List orchestrations
  orch show <id>               Show one orchestration
  orch dispatch <id> <target> <text>
                               Write text to a worker ("all" for every worker)
  orch sync <id> [-force]      Run a manual digest sync
  orch cleanup <id> [-delete] [-worktrees]
                               Stop sessions; optionally delete them and
                               remove worktrees

  events [-n N]                Show recent events (default 50)
  events -f [pattern]          Stream live events matching a kind pattern

  commands                     List the command catalog

  pair new                     Mint a pairing code (needs the token)
  pair <code>                  Redeem a pairing code and save the token`)
}

func printJSON(v interface{}) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

// discoverAPI reads the daemon's pid file from the default data directory.
func discoverAPI() string {
	dataDir := config.Default().ResolvedDataDir()
	if _, port, bind, err := app.ReadPIDFile(dataDir); err == nil && port > 0 {
		if bind == "" || bind == "0.0.0.0" {
			bind = "localhost"
		}
		return fmt.Sprintf("http://%s:%d", bind, port)
	}
	return "http://localhost:4112"
}

func tokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "fyp", "token")
}

func loadToken() string {
	if env := os.Getenv("FYP_TOKEN"); env != "" {
		return env
	}
	if path := tokenPath(); path != "" {
		if raw, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(raw))
		}
	}
	return ""
}

func saveToken(token string) error {
	path := tokenPath()
	if path == "" {
		return fmt.Errorf("cannot determine home directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}

func cmdStatus(args []string) error {
	st, err := apiClient.Status(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(st)
		return nil
	}

	fmt.Printf("fyp %s (pid %d), up %s\n", st.Version, st.PID, formatUptime(st.UptimeMs))
	fmt.Printf("  sessions:        %d total, %d running\n", st.Sessions.Total, st.Sessions.Running)
	fmt.Printf("  orchestrations:  %d active\n", st.Orchestrations.Active)
	open := 0
	for _, n := range st.Inbox {
		open += n
	}
	fmt.Printf("  inbox:           %d open\n", open)
	if st.PendingQuestions > 0 {
		fmt.Printf("  questions:       %d waiting on the orchestrator\n", st.PendingQuestions)
	}
	return nil
}

func formatUptime(ms int64) string {
	secs := ms / 1000
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	if secs < 3600 {
		return fmt.Sprintf("%dm%ds", secs/60, secs%60)
	}
	return fmt.Sprintf("%dh%dm", secs/3600, (secs%3600)/60)
}

func cmdSessions(args []string) error {
	ctx := context.Background()

	if len(args) == 0 {
		sessions, err := apiClient.Sessions.List(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(sessions)
			return nil
		}
		fmt.Printf("%-38s %-10s %-9s %-5s %s\n", "ID", "TOOL", "STATE", "PIN", "CWD")
		fmt.Println(strings.Repeat("-", 90))
		for _, s := range sessions {
			state := "exited"
			if s.Status.Running {
				state = "running"
			}
			pin := "-"
			if s.PinnedSlot > 0 {
				pin = strconv.Itoa(s.PinnedSlot)
			}
			fmt.Printf("%-38s %-10s %-9s %-5s %s\n", s.ID, s.Tool, state, pin, s.Cwd)
		}
		return nil
	}

	switch args[0] {
	case "show":
		if len(args) < 2 {
			return fmt.Errorf("usage: fyp-ctl sessions show <id>")
		}
		s, err := apiClient.Sessions.Get(ctx, args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(s)
			return nil
		}
		fmt.Printf("id:       %s\n", s.ID)
		fmt.Printf("tool:     %s\n", s.Tool)
		fmt.Printf("cwd:      %s\n", s.Cwd)
		if s.Label != "" {
			fmt.Printf("label:    %s\n", s.Label)
		}
		if s.Status.Running {
			fmt.Printf("state:    running (pid %d)\n", s.Status.PID)
		} else if s.ExitCode != nil {
			fmt.Printf("state:    exited (code %d)\n", *s.ExitCode)
		} else {
			fmt.Printf("state:    exited\n")
		}
		fmt.Printf("created:  %s\n", s.CreatedAt.Format("2006-01-02 15:04:05"))
		return nil

	case "input":
		if len(args) < 3 {
			return fmt.Errorf("usage: fyp-ctl sessions input <id> <text>")
		}
		text := strings.Join(args[2:], " ") + "\r"
		if err := apiClient.Sessions.Input(ctx, args[1], text); err != nil {
			return err
		}
		fmt.Println("Sent")
		return nil

	case "interrupt":
		if len(args) < 2 {
			return fmt.Errorf("usage: fyp-ctl sessions interrupt <id>")
		}
		if err := apiClient.Sessions.Interrupt(ctx, args[1]); err != nil {
			return err
		}
		fmt.Println("Interrupted")
		return nil

	case "kill":
		if len(args) < 2 {
			return fmt.Errorf("usage: fyp-ctl sessions kill <id>")
		}
		if err := apiClient.Sessions.Kill(ctx, args[1]); err != nil {
			return err
		}
		fmt.Println("Killed")
		return nil

	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("usage: fyp-ctl sessions delete <id> [-f]")
		}
		force := false
		for _, a := range args[2:] {
			if a == "-f" || a == "-force" {
				force = true
			}
		}
		if err := apiClient.Sessions.Delete(ctx, args[1], force); err != nil {
			return err
		}
		fmt.Println("Deleted")
		return nil

	case "output":
		if len(args) < 2 {
			return fmt.Errorf("usage: fyp-ctl sessions output <id> [-n bytes]")
		}
		maxBytes := 0
		for i := 2; i < len(args); i++ {
			if args[i] == "-n" && i+1 < len(args) {
				if n, err := strconv.Atoi(args[i+1]); err == nil {
					maxBytes = n
				}
				i++
			}
		}
		text, err := apiClient.Sessions.Output(ctx, args[1], maxBytes)
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	}

	return fmt.Errorf("unknown sessions subcommand: %s", args[0])
}

func cmdInbox(args []string) error {
	ctx := context.Background()

	if len(args) == 0 || args[0] == "-all" {
		filter := &client.InboxFilter{Status: "open"}
		if len(args) > 0 && args[0] == "-all" {
			filter = nil
		}
		page, err := apiClient.Inbox.List(ctx, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(page)
			return nil
		}
		fmt.Printf("%-6s %-10s %-10s %-38s %s\n", "ID", "STATUS", "KIND", "SESSION", "TITLE")
		fmt.Println(strings.Repeat("-", 100))
		for _, item := range page.Items {
			fmt.Printf("%-6d %-10s %-10s %-38s %s\n", item.ID, item.Status, item.Kind, item.SessionID, item.Title)
			for _, opt := range item.Options {
				fmt.Printf("       option %s: %s\n", opt.ID, opt.Label)
			}
		}
		return nil
	}

	switch args[0] {
	case "respond":
		if len(args) < 3 {
			return fmt.Errorf("usage: fyp-ctl inbox respond <id> <option>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("attention id must be numeric")
		}
		item, err := apiClient.Inbox.Respond(ctx, id, args[2])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(item)
			return nil
		}
		fmt.Printf("Resolved #%d (%s)\n", item.ID, item.Title)
		return nil

	case "dismiss":
		if len(args) < 2 {
			return fmt.Errorf("usage: fyp-ctl inbox dismiss <id>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("attention id must be numeric")
		}
		item, err := apiClient.Inbox.Dismiss(ctx, id)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(item)
			return nil
		}
		fmt.Printf("Dismissed #%d (%s)\n", item.ID, item.Title)
		return nil
	}

	return fmt.Errorf("unknown inbox subcommand: %s", args[0])
}

func cmdOrch(args []string) error {
	ctx := context.Background()

	if len(args) == 0 {
		orchs, err := apiClient.Orchestrations.List(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(orchs)
			return nil
		}
		fmt.Printf("%-38s %-20s %-9s %-8s %s\n", "ID", "NAME", "STATUS", "WORKERS", "PROJECT")
		fmt.Println(strings.Repeat("-", 100))
		for _, o := range orchs {
			fmt.Printf("%-38s %-20s %-9s %-8d %s\n", o.ID, o.Name, o.Status, len(o.Workers), o.ProjectPath)
		}
		return nil
	}

	switch args[0] {
	case "show":
		if len(args) < 2 {
			return fmt.Errorf("usage: fyp-ctl orch show <id>")
		}
		doc, err := apiClient.Orchestrations.Get(ctx, args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(doc)
			return nil
		}
		fmt.Printf("id:            %s\n", doc.ID)
		fmt.Printf("name:          %s\n", doc.Name)
		fmt.Printf("project:       %s\n", doc.ProjectPath)
		fmt.Printf("status:        %s\n", doc.Status)
		fmt.Printf("dispatch mode: %s\n", doc.DispatchMode)
		fmt.Printf("orchestrator:  %s\n", doc.OrchestratorSessionID)
		fmt.Printf("workers:\n")
		for _, w := range doc.Workers {
			line := fmt.Sprintf("  %-15s %s", w.Slug, w.SessionID)
			if w.Branch != "" {
				line += " (" + w.Branch + ")"
			}
			if w.WorktreeError != "" {
				line += " worktree error: " + w.WorktreeError
			}
			fmt.Println(line)
		}
		return nil

	case "dispatch":
		if len(args) < 4 {
			return fmt.Errorf("usage: fyp-ctl orch dispatch <id> <target> <text>")
		}
		out, err := apiClient.Orchestrations.Dispatch(ctx, args[1], &client.DispatchRequest{
			Target: args[2],
			Text:   strings.Join(args[3:], " "),
			Source: "ctl",
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(out)
			return nil
		}
		fmt.Printf("Dispatched to %d worker(s)", out.Count.Sent)
		if out.Count.Failed > 0 {
			fmt.Printf(", %d failed", out.Count.Failed)
		}
		fmt.Println()
		return nil

	case "sync":
		if len(args) < 2 {
			return fmt.Errorf("usage: fyp-ctl orch sync <id> [-force]")
		}
		force := false
		for _, a := range args[2:] {
			if a == "-force" {
				force = true
			}
		}
		out, err := apiClient.Orchestrations.Sync(ctx, args[1], &client.SyncRequest{Force: force})
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(out)
			return nil
		}
		if out.Sent {
			fmt.Printf("Digest delivered: %d workers, %d running, %d changed\n",
				out.Digest.Workers, out.Digest.Running, out.Digest.Changes)
		} else {
			fmt.Printf("Digest not delivered (%s)\n", out.Reason)
		}
		return nil

	case "cleanup":
		if len(args) < 2 {
			return fmt.Errorf("usage: fyp-ctl orch cleanup <id> [-delete] [-worktrees]")
		}
		req := &client.CleanupRequest{StopSessions: true}
		for _, a := range args[2:] {
			switch a {
			case "-delete":
				req.DeleteSessions = true
			case "-worktrees":
				req.RemoveWorktrees = true
			}
		}
		summary, err := apiClient.Orchestrations.Cleanup(ctx, args[1], req)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(summary)
			return nil
		}
		fmt.Printf("Cleanup done: %d sessions closed, %d deleted, %d worktrees removed\n",
			summary.Sessions.Closed, summary.Sessions.Deleted, summary.Worktrees.Removed)
		return nil
	}

	return fmt.Errorf("unknown orch subcommand: %s", args[0])
}

func cmdEvents(args []string) error {
	follow := false
	limit := 50
	pattern := ""

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-f":
			follow = true
		case args[i] == "-n" && i+1 < len(args):
			if n, err := strconv.Atoi(args[i+1]); err == nil && n > 0 {
				limit = n
			}
			i++
		default:
			pattern = args[i]
		}
	}

	ctx := context.Background()

	if follow {
		return streamEvents(ctx, pattern)
	}

	filter := &client.EventFilter{Limit: limit}
	if pattern != "" {
		filter.Kinds = []string{pattern}
	}
	eventList, err := apiClient.Events.History(ctx, filter)
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(eventList)
		return nil
	}
	for _, ev := range eventList {
		printEvent(ev)
	}
	return nil
}

func streamEvents(ctx context.Context, pattern string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	sub, err := apiClient.Events.Subscribe(ctx, pattern, 0)
	if err != nil {
		return err
	}
	defer sub.Close()

	for ev := range sub.Events {
		if jsonOutput {
			raw, _ := json.Marshal(ev)
			fmt.Println(string(raw))
		} else {
			printEvent(&ev)
		}
	}
	if err := sub.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func printEvent(ev *client.Event) {
	target := ev.SessionID
	if target == "" {
		target = ev.OrchestrationID
	}
	if target == "" {
		target = "-"
	}
	details := ""
	if len(ev.Data) > 0 {
		parts := make([]string, 0, len(ev.Data))
		for k, v := range ev.Data {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
		details = strings.Join(parts, " ")
	}
	fmt.Printf("%-20s %-30s %-38s %s\n",
		ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Kind, target, details)
}

func cmdCommands(args []string) error {
	cmds, err := apiClient.Commands.Catalog(context.Background())
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(cmds)
		return nil
	}
	fmt.Printf("%-28s %-18s %-7s %s\n", "COMMAND", "MODE", "TIER", "SUMMARY")
	fmt.Println(strings.Repeat("-", 100))
	for _, c := range cmds {
		fmt.Printf("%-28s %-18s %-7s %s\n", c.ID, c.Mode, c.Tier, c.Summary)
	}
	return nil
}

func cmdPair(args []string) error {
	ctx := context.Background()

	if len(args) >= 1 && args[0] == "new" {
		code, err := apiClient.NewPairingCode(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Pairing code: %s\n", code)
		fmt.Println("Redeem it within its TTL: fyp-ctl pair <code>")
		return nil
	}

	if len(args) < 1 {
		return fmt.Errorf("usage: fyp-ctl pair <code> | fyp-ctl pair new")
	}

	token, err := apiClient.Pair(ctx, args[0])
	if err != nil {
		return err
	}
	if err := saveToken(token); err != nil {
		fmt.Printf("Token: %s\n", token)
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Printf("Paired. Token saved to %s\n", tokenPath())
	return nil
}
