// braid TUI - a terminal client for threaded AI conversations.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/braid-tui/internal/backend"
	"github.com/jeranaias/braid-tui/internal/config"
	"github.com/jeranaias/braid-tui/internal/engine"
	"github.com/jeranaias/braid-tui/internal/storage"
	"github.com/jeranaias/braid-tui/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "print version and exit")
		noStream    = flag.Bool("no-stream", false, "disable streamed delivery")
		audioMode   = flag.Bool("audio", false, "audio rendering mode (forces non-streaming)")
		resume      = flag.Bool("continue", false, "resume the most recent conversation")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("braid %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*noStream, *audioMode, *resume); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(noStream, audioMode, resume bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Backend.URL == "" {
		return fmt.Errorf("no backend configured: set backend.url in the config file or BRAID_BACKEND_URL")
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return err
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	client := backend.NewClient(cfg.Backend.URL, cfg.Backend.Token)

	opts := engine.Options{
		Streaming:        cfg.Stream.Enabled && !noStream,
		AudioMode:        cfg.Stream.AudioMode || audioMode,
		StreamDeadline:   cfg.StreamDeadline(),
		RedrawsPerSecond: cfg.Stream.RedrawsPerSecond,
	}
	eng := engine.New(client, store, nil, opts)
	defer eng.Close()

	if resume {
		if err := resumeLatest(eng, store); err != nil {
			return err
		}
	}

	exportDir, err := config.ExportDir()
	if err != nil {
		return err
	}

	m := chat.New(eng, cfg.UI.Markdown, cfg.UI.Theme, exportDir)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// The engine notifies the renderer through Program.Send, which is safe
	// from its streaming goroutines.
	eng.SetNotifier(chat.NewProgramNotifier(p))

	_, err = p.Run()
	return err
}

// resumeLatest seeds the engine with the most recently updated conversation
// from local history. No history is not an error; the session just starts
// fresh.
func resumeLatest(eng *engine.Engine, store *storage.History) error {
	list, err := store.ListConversations(1)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(list) == 0 {
		return nil
	}
	conv, err := store.LoadConversation(list[0].ID)
	if err != nil {
		return fmt.Errorf("failed to load conversation %s: %w", list[0].ID, err)
	}
	return eng.ResumeConversation(conv)
}
