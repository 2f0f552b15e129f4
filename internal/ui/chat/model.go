// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file contains the central Bubble Tea model for the chat interface:
// conversation rendering state, input handling, viewport scrolling, and the
// bridge to the conversation engine.
package chat

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/braid-tui/internal/engine"
	"github.com/jeranaias/braid-tui/internal/model"
	"github.com/jeranaias/braid-tui/internal/thread"
	"github.com/jeranaias/braid-tui/internal/ui/styles"
)

// =============================================================================
// MODEL
// =============================================================================

// attemptBounds caches the latest navigation indicator for a position.
type attemptBounds struct {
	index int
	count int
}

// Model is the Bubble Tea model for the chat view. Conversation content is
// owned by the engine; the model renders from snapshots it pulls on each
// engine notification and never reads the live conversation, which the
// engine's goroutines keep mutating mid-stream.
type Model struct {
	engine *engine.Engine
	keys   KeyMap

	// conv is the latest conversation snapshot, refreshed by syncConv.
	conv *model.Conversation

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	// busy is true while a send/edit/retry command is in flight.
	busy bool

	// editTargetID is set while the input holds an edit of an existing
	// user message instead of a fresh one.
	editTargetID string

	// bounds caches attempt indicators per position, refreshed by
	// AttemptBoundsMsg.
	bounds map[thread.Position]attemptBounds

	// statusText holds the last failure or hint shown in the status bar.
	statusText string

	// exportDir is where markdown exports land (empty disables export).
	exportDir string

	// statsText shows the last finalized response's stream statistics.
	statsText string

	// Markdown rendering
	markdown bool
	theme    string
	renderer *glamour.TermRenderer
}

// New creates the chat model around an engine.
func New(eng *engine.Engine, markdown bool, theme, exportDir string) Model {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.SetHeight(1)
	ta.CharLimit = 0
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(styles.ColorPrimary)

	return Model{
		engine:    eng,
		conv:      eng.Snapshot(),
		keys:      DefaultKeyMap(),
		input:     ta,
		spinner:   sp,
		bounds:    make(map[thread.Position]attemptBounds),
		markdown:  markdown,
		theme:     theme,
		exportDir: exportDir,
	}
}

// rebuildRenderer sizes the markdown renderer to the current width. A nil
// renderer falls back to plain text.
func (m *Model) rebuildRenderer() {
	if !m.markdown || m.width == 0 {
		m.renderer = nil
		return
	}
	wrap := m.width - 4
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.theme),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		m.renderer = nil
		return
	}
	m.renderer = r
}

// boundsFor returns the cached attempt indicator for a position, falling
// back to the thread manager's view.
func (m Model) boundsFor(position thread.Position) attemptBounds {
	if b, ok := m.bounds[position]; ok {
		return b
	}
	return attemptBounds{
		index: m.engine.Threads().CurrentIndex(position),
		count: m.engine.Threads().AttemptCount(position),
	}
}
