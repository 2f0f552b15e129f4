// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file contains the rendering logic for the chat interface: the header,
// message list, attempt indicators, input area, and status bar.
package chat

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/braid-tui/internal/model"
	"github.com/jeranaias/braid-tui/internal/thread"
	"github.com/jeranaias/braid-tui/internal/ui/styles"
	"github.com/jeranaias/braid-tui/internal/util"
)

// =============================================================================
// MAIN RENDER
// =============================================================================

// View renders the complete chat view.
// Layout: header (1 line) + messages (viewport) + input (3 lines) + status (1 line)
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		styles.InputBorder.Width(m.width-2).Render(m.input.View()),
		m.renderStatusBar(),
	)
}

// renderHeader renders the title bar.
func (m Model) renderHeader() string {
	title := m.conv.GetTitle()
	return styles.HeaderBar.Render("braid - " + util.TruncateRunes(title, m.width-10))
}

// renderStatusBar renders the bottom status line: state or hints on the
// left, stream statistics for the last response on the right.
func (m Model) renderStatusBar() string {
	var left string
	switch {
	case m.busy:
		left = m.spinner.View() + " " + styles.MutedText.Render("thinking...")
	case m.statusText != "":
		left = styles.ErrorText.Render(util.TruncateRunes(m.statusText, m.width-30))
	default:
		left = styles.MutedText.Render("Enter send | C-r retry | C-e edit | M-arrows attempts | C-s export")
	}

	if m.statsText != "" && !m.busy {
		right := styles.MutedText.Render(m.statsText)
		gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
		if gap > 0 {
			left += strings.Repeat(" ", gap) + right
		}
	}
	return styles.StatusBar.Render(left)
}

// =============================================================================
// MESSAGE LIST
// =============================================================================

// renderMessages renders the active view of the conversation: one message
// per position, with a response in flight taking precedence over the stored
// active attempt at its position.
func (m Model) renderMessages() string {
	msgs := m.visibleMessages()
	if len(msgs) == 0 {
		return styles.MutedText.Render("\n  Start a conversation.")
	}

	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	return b.String()
}

// visibleMessages picks the message rendered at each position, out of the
// conversation snapshot.
func (m Model) visibleMessages() []*model.Message {
	byPosition := make(map[int]*model.Message)
	for _, msg := range m.conv.Messages {
		current, ok := byPosition[msg.Position]
		switch {
		case !ok:
			if msg.ActiveThread || msg.IsStreaming {
				byPosition[msg.Position] = msg
			}
		case msg.IsStreaming:
			// An in-flight attempt always outranks the stored one.
			byPosition[msg.Position] = msg
		case msg.ActiveThread && !current.IsStreaming:
			byPosition[msg.Position] = msg
		}
	}

	out := make([]*model.Message, 0, len(byPosition))
	for _, msg := range byPosition {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// renderMessage renders one message block.
func (m Model) renderMessage(msg *model.Message) string {
	var b strings.Builder

	b.WriteString(m.renderLabel(msg))
	b.WriteString("\n")
	b.WriteString(m.renderContent(msg))

	if msg.Interrupted {
		b.WriteString("\n")
		b.WriteString(styles.InterruptedMarker.Render("! " + msg.InterruptReason))
	}
	if len(msg.Citations) > 0 {
		b.WriteString("\n")
		b.WriteString(m.renderCitations(msg.Citations))
	}
	b.WriteString("\n")
	return b.String()
}

// renderLabel renders the role line, with the attempt indicator when the
// position has siblings.
func (m Model) renderLabel(msg *model.Message) string {
	var label string
	switch msg.Role {
	case model.RoleUser:
		label = styles.UserLabel.Render(msg.Role.DisplayName())
	case model.RoleAssistant:
		name := msg.Role.DisplayName()
		if msg.Attribution.Model != "" {
			name = msg.Attribution.Model
		}
		label = styles.AgentLabel.Render(name)
	case model.RoleError:
		label = styles.ErrorText.Render(msg.Role.DisplayName())
	default:
		label = styles.SystemLabel.Render(msg.Role.DisplayName())
	}

	if b := m.boundsFor(thread.Position(msg.Position)); b.count > 1 {
		label += "  " + styles.AttemptIndicator.Render(fmt.Sprintf("< %d/%d >", b.index, b.count))
	}
	return label
}

// renderContent renders the message body, through glamour for finalized
// assistant markdown. Streaming content stays plain: re-rendering markdown
// on every redraw is wasteful and unstable mid-document.
func (m Model) renderContent(msg *model.Message) string {
	content := msg.DisplayContent()

	if msg.Role == model.RoleAssistant && !msg.IsStreaming && m.renderer != nil {
		if rendered, err := m.renderer.Render(content); err == nil {
			return strings.TrimRight(rendered, "\n")
		}
	}
	return content
}

// renderCitations renders source references under an assistant message.
func (m Model) renderCitations(citations []model.Citation) string {
	var b strings.Builder
	b.WriteString(styles.MutedText.Render("Sources:"))
	for _, c := range citations {
		b.WriteString("\n")
		title := c.Title
		if title == "" {
			title = c.URI
		}
		b.WriteString(styles.MutedText.Render("  - " + util.TruncateRunes(title, m.width-6)))
	}
	return b.String()
}
