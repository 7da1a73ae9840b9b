// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/wingedpig/fyp/internal/app"
)

var version = "0.9"

func main() {
	// Subcommand dispatch happens before flag parsing.
	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := runInit(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	var (
		configPath  string
		host        string
		port        int
		token       string
		showVersion bool
		debug       bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.StringVar(&host, "host", "", "API server host (overrides config)")
	flag.IntVar(&port, "port", 0, "API server port (overrides config)")
	flag.StringVar(&token, "token", "", "API token (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging and /debug/pprof")
	flag.Parse()

	if showVersion {
		fmt.Printf("fyp %s\n", version)
		os.Exit(0)
	}

	application, err := app.New(app.Options{
		ConfigPath: configPath,
		Host:       host,
		Port:       port,
		Token:      token,
		Debug:      debug,
		Version:    version,
	})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("fyp: %v", err)
	}
}

// runInit handles `fyp init`.
func runInit() error {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	showHelp := initFlags.Bool("help", false, "Show help for init command")
	initFlags.BoolVar(showHelp, "h", false, "Show help for init command")
	initFlags.Parse(os.Args[2:])

	if *showHelp {
		fmt.Println(`Usage: fyp init [options]

Create a fyp.hjson configuration file in the current directory.

The generated file is fully commented. You will be asked about:
  - Server port (defaults to 4112)
  - An API token (generated for you; leave empty to disable auth)
  - Which coding tools you use (codex, claude, opencode)

Options:
  -h, -help    Show this help message

After running init:
  1. Review and edit fyp.hjson as needed
  2. Run: fyp
  3. Pair a client: fyp-ctl pair`)
		return nil
	}

	configFile := "fyp.hjson"
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("%s already exists; remove it first or use a different directory", configFile)
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("fyp Configuration Setup")
	fmt.Println("=======================")
	fmt.Println()
	fmt.Println("Press Enter to accept defaults shown in [brackets].")
	fmt.Println()

	portStr := prompt(reader, "Server port", "4112")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = 4112
	}

	genToken := prompt(reader, "Require an API token? (y/n)", "y")
	token := ""
	if strings.ToLower(genToken) == "y" {
		token = randomToken()
	}

	tools := prompt(reader, "Tools you use (comma separated: codex,claude,opencode)", "codex,claude")

	content := generateConfig(port, token, strings.Split(tools, ","))
	if err := os.WriteFile(configFile, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	fmt.Println()
	fmt.Printf("Created %s\n", configFile)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review and edit fyp.hjson as needed")
	fmt.Println("  2. Run: fyp")
	if token != "" {
		fmt.Println("  3. Pair a client: fyp-ctl pair")
	}
	fmt.Println()
	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

func randomToken() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

func generateConfig(port int, token string, tools []string) string {
	var sb strings.Builder

	sb.WriteString(`{
  // ===========================================================================
  // fyp Configuration
  // ===========================================================================
  //
  // This is an HJSON file (JSON with comments and relaxed syntax).
  // ${VAR} references are expanded from the environment before parsing, so
  // secrets can live outside the file.

  version: "1"

  // ---------------------------------------------------------------------------
  // Server
  // ---------------------------------------------------------------------------
  server: {
    // Host to bind to (use "0.0.0.0" to allow remote access)
    host: "127.0.0.1"

    port: `)
	sb.WriteString(strconv.Itoa(port))
	sb.WriteString("\n")
	if token != "" {
		sb.WriteString(`
    // Every /api/v1 request must carry this as "Authorization: Bearer <token>".
    // Clients obtain it once via a pairing code (fyp-ctl pair).
    token: "` + token + `"
`)
	} else {
		sb.WriteString(`
    // No token: the API is open. Only do this on a loopback-only bind.
    // token: "..."
`)
	}
	sb.WriteString(`
    // For HTTPS from certificate files:
    // tls_cert: "~/.config/fyp/cert.pem"
    // tls_key: "~/.config/fyp/key.pem"

    // Or fetch certificates from the local tailscaled (tailnet HTTPS):
    // tailscale_tls: true
  }

  // Where the SQLite database, transcripts, and server.pid live.
  data_dir: "~/.local/share/fyp"

  // ---------------------------------------------------------------------------
  // Tools
  // ---------------------------------------------------------------------------
  //
  // Launch settings per coding CLI. The command defaults to the tool name on
  // PATH; args and env are appended to every spawn.
  tools: {
`)
	known := map[string]string{
		"codex":    `      // args: ["--sandbox", "workspace-write"]`,
		"claude":   `      // env: { ANTHROPIC_API_KEY: "${ANTHROPIC_API_KEY}" }`,
		"opencode": ``,
	}
	for _, tool := range tools {
		tool = strings.TrimSpace(strings.ToLower(tool))
		hint, ok := known[tool]
		if !ok {
			continue
		}
		sb.WriteString("    " + tool + ": {\n")
		sb.WriteString("      command: \"" + tool + "\"\n")
		if hint != "" {
			sb.WriteString(hint + "\n")
		}
		sb.WriteString("    }\n")
	}
	sb.WriteString(`  }

  // Named launch profiles layered on top of a tool. A profile can carry a
  // bootstrap prompt that is typed into the session after spawn.
  // profiles: [
  //   { id: "claude-deep", tool: "claude", args: ["--model", "opus"] }
  // ]

  // ---------------------------------------------------------------------------
  // Orchestration
  // ---------------------------------------------------------------------------
  orchestration: {
    // Window in which a repeated directive payload is treated as a duplicate.
    dedupe_window: "30s"

    // How long an orchestrator-routed question may wait before falling back
    // to the human inbox.
    question_timeout: "2m"

    // Default digest interval for new orchestrations ("0" = manual sync only).
    sync_interval: "0"

    // Floor between digest deliveries to the orchestrator.
    min_delivery_gap: "20s"

    // Where worker worktrees are created, relative to the project root.
    worktrees_dir: ".worktrees"
  }

  // One-shot pairing codes for handing the token to new clients.
  pairing: {
    ttl: "5m"
    max_attempts: 5
  }

  // In-memory event history used for WebSocket replay.
  events: {
    history_size: 10000
    history_age: "1h"
  }
}
`)
	return sb.String()
}
