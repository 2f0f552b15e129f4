// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file handles the Bubble Tea update loop: keyboard input, engine
// notifications, and window resizing.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/braid-tui/internal/backend"
	"github.com/jeranaias/braid-tui/internal/model"
	"github.com/jeranaias/braid-tui/internal/storage"
	"github.com/jeranaias/braid-tui/internal/thread"
)

// Init starts the input cursor blink.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update processes one Bubble Tea message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.rebuildRenderer()
		m.layout()
		m.refreshViewport(true)
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	// Engine notifications. Each pulls a fresh conversation snapshot; the
	// view renders from snapshots only.
	case MessageCreatedMsg:
		m.syncConv()
		m.refreshViewport(true)
		return m, nil

	case MessageUpdatedMsg:
		m.syncConv()
		m.refreshViewport(true)
		return m, nil

	case MessageFinalizedMsg:
		if fin := msg.Message; fin.Role == model.RoleAssistant && fin.FragmentCount > 0 {
			m.statsText = fmt.Sprintf("%d fragments, first after %s",
				fin.FragmentCount, fin.TimeToFirstByte.Round(time.Millisecond))
		}
		m.syncConv()
		m.refreshViewport(true)
		return m, nil

	case MessagesDeletedMsg:
		m.syncConv()
		m.refreshViewport(false)
		return m, nil

	case AttemptBoundsMsg:
		m.bounds[msg.Position] = attemptBounds{index: msg.Index, count: msg.Count}
		m.syncConv()
		m.refreshViewport(false)
		return m, nil

	case OperationFailedMsg:
		m.statusText = msg.Detail
		m.refreshViewport(false)
		return m, nil

	case OperationDoneMsg:
		m.busy = false
		m.syncConv()
		m.refreshViewport(true)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// handleKey processes one keypress.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.engine.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.busy {
			m.engine.CancelActiveStream()
			m.statusText = "Response cancelled"
			return m, nil
		}
		if m.editTargetID != "" {
			m.editTargetID = ""
			m.input.Reset()
			m.statusText = ""
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.Retry):
		if m.busy {
			return m, nil
		}
		if target := m.lastAssistant(); target != nil {
			m.busy = true
			m.statusText = "Retrying..."
			return m, tea.Batch(m.spinner.Tick, m.retryCmd(target.CurrentID()))
		}
		return m, nil

	case key.Matches(msg, m.keys.Edit):
		if m.busy {
			return m, nil
		}
		if target := m.lastUser(); target != nil {
			m.editTargetID = target.CurrentID()
			m.input.SetValue(target.Content)
			m.input.CursorEnd()
			m.statusText = "Editing message (Esc to cancel)"
		}
		return m, nil

	case key.Matches(msg, m.keys.Export):
		return m.export()

	case key.Matches(msg, m.keys.PrevAttempt):
		return m.navigate(thread.Previous)

	case key.Matches(msg, m.keys.NextAttempt):
		return m.navigate(thread.Next)

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown),
		key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit dispatches the input as a fresh send or a pending edit.
func (m Model) submit() (tea.Model, tea.Cmd) {
	content := strings.TrimSpace(m.input.Value())
	if content == "" || m.busy {
		return m, nil
	}

	m.busy = true
	m.input.Reset()
	m.statusText = ""

	if target := m.editTargetID; target != "" {
		m.editTargetID = ""
		return m, tea.Batch(m.spinner.Tick, m.editCmd(target, content))
	}
	return m, tea.Batch(m.spinner.Tick, m.sendCmd(content))
}

// export writes the active thread to a markdown file.
func (m Model) export() (tea.Model, tea.Cmd) {
	if m.exportDir == "" || m.conv.MessageCount() == 0 {
		return m, nil
	}
	path, err := storage.WriteExport(m.exportDir, m.conv)
	if err != nil {
		m.statusText = "Export failed: " + err.Error()
	} else {
		m.statusText = "Exported to " + path
	}
	return m, nil
}

// navigate switches the last assistant position to a sibling attempt.
func (m Model) navigate(direction thread.Direction) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	target := m.lastAssistant()
	if target == nil {
		return m, nil
	}
	position := thread.Position(target.Position)
	canPrev, canNext := m.engine.Threads().Bounds(position)
	if (direction == thread.Previous && !canPrev) || (direction == thread.Next && !canNext) {
		return m, nil
	}
	m.busy = true
	return m, tea.Batch(m.spinner.Tick, m.navigateCmd(position, direction))
}

// =============================================================================
// ENGINE COMMANDS
// =============================================================================

// Engine calls block until the response is terminal, so each runs as a
// command off the update loop. Progress arrives separately through the
// notifier.

func (m Model) sendCmd(content string) tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		return OperationDoneMsg{Err: eng.SendUserMessage(context.Background(), content)}
	}
}

func (m Model) editCmd(messageID, content string) tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		return OperationDoneMsg{Err: eng.EditMessage(context.Background(), messageID, content)}
	}
}

func (m Model) retryCmd(messageID string) tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		return OperationDoneMsg{Err: eng.RetryMessage(context.Background(), messageID, backend.RetryOverrides{})}
	}
}

func (m Model) navigateCmd(position thread.Position, direction thread.Direction) tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		return OperationDoneMsg{Err: eng.NavigateAttempt(context.Background(), position, direction)}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// layout sizes the viewport to the space left by the chrome.
func (m *Model) layout() {
	inputHeight := 3
	chromeHeight := 1 + inputHeight + 1 // header + input + status
	vpHeight := m.height - chromeHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	if !m.ready {
		m.viewport = viewport.New(m.width, vpHeight)
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = vpHeight
	}
	m.input.SetWidth(m.width - 4)
}

// syncConv pulls a fresh conversation snapshot from the engine.
func (m *Model) syncConv() {
	m.conv = m.engine.Snapshot()
}

// refreshViewport re-renders the conversation into the viewport.
func (m *Model) refreshViewport(follow bool) {
	if m.width == 0 {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderMessages())
	if follow && atBottom {
		m.viewport.GotoBottom()
	}
}

// lastUser returns the most recent active user message in the snapshot.
func (m Model) lastUser() *model.Message {
	return m.conv.LastUserMessage()
}

// lastAssistant returns the most recent active assistant message in the
// snapshot.
func (m Model) lastAssistant() *model.Message {
	msgs := m.conv.ActiveMessages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant && !msgs[i].IsStreaming {
			return msgs[i]
		}
	}
	return nil
}
