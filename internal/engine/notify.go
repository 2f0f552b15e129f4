// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"github.com/jeranaias/braid-tui/internal/model"
	"github.com/jeranaias/braid-tui/internal/thread"
)

// =============================================================================
// NOTIFIER
// =============================================================================

// Notifier is the complete surface the engine exposes to the rendering
// layer. Implementations adapt these into whatever event type the renderer
// consumes; they must not block.
type Notifier interface {
	// MessageCreated announces a provisionally-identified message that was
	// rendered optimistically.
	MessageCreated(msg *model.Message)

	// MessageFinalized announces a message that reached its final content
	// and, when the operation succeeded, its durable id.
	MessageFinalized(msg *model.Message)

	// MessageUpdated delivers a progressive redraw: the full accumulated
	// content so far for an in-flight message.
	MessageUpdated(id string, content string)

	// AttemptBoundsChanged announces that navigation controls for a
	// position should be re-evaluated.
	AttemptBoundsChanged(position thread.Position, index, count int)

	// MessagesDeleted announces message removals by id, whether
	// backend-confirmed deletions or withdrawn placeholders.
	MessagesDeleted(ids []string)

	// OperationFailed surfaces a classified failure the user may act on.
	OperationFailed(kind FailureKind, detail string)
}

// NopNotifier discards every notification. Useful for tests and headless
// use.
type NopNotifier struct{}

func (NopNotifier) MessageCreated(*model.Message)                    {}
func (NopNotifier) MessageFinalized(*model.Message)                  {}
func (NopNotifier) MessageUpdated(string, string)                    {}
func (NopNotifier) AttemptBoundsChanged(thread.Position, int, int)   {}
func (NopNotifier) MessagesDeleted([]string)                         {}
func (NopNotifier) OperationFailed(FailureKind, string)              {}
