// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file defines all Bubble Tea message types used by the chat interface.
// The engine-originated messages mirror the engine's notifier surface and
// are delivered through tea.Program.Send from the engine's goroutines.
package chat

import (
	"github.com/jeranaias/braid-tui/internal/engine"
	"github.com/jeranaias/braid-tui/internal/model"
	"github.com/jeranaias/braid-tui/internal/thread"
)

// =============================================================================
// ENGINE MESSAGES
// =============================================================================

// MessageCreatedMsg announces a provisionally-rendered message. Message is a
// snapshot, not the live message the engine keeps mutating.
type MessageCreatedMsg struct {
	Message *model.Message
}

// MessageUpdatedMsg delivers a progressive redraw during streaming.
type MessageUpdatedMsg struct {
	ID      string
	Content string
}

// MessageFinalizedMsg announces a message that reached final content.
// Message is a snapshot.
type MessageFinalizedMsg struct {
	Message *model.Message
}

// AttemptBoundsMsg refreshes the attempt navigation indicator for a
// position.
type AttemptBoundsMsg struct {
	Position thread.Position
	Index    int
	Count    int
}

// MessagesDeletedMsg announces message removals.
type MessagesDeletedMsg struct {
	IDs []string
}

// OperationFailedMsg surfaces a classified engine failure.
type OperationFailedMsg struct {
	Kind   engine.FailureKind
	Detail string
}

// =============================================================================
// OPERATION MESSAGES
// =============================================================================

// OperationDoneMsg signals that a send/edit/retry command finished. Err is
// nil on success; terminal failures were already surfaced through
// OperationFailedMsg.
type OperationDoneMsg struct {
	Err error
}
