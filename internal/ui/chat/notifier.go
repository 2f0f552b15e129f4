// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/braid-tui/internal/engine"
	"github.com/jeranaias/braid-tui/internal/model"
	"github.com/jeranaias/braid-tui/internal/thread"
)

// ProgramNotifier adapts engine notifications into Bubble Tea messages.
// Program.Send is safe from any goroutine, so the engine can notify directly
// from its streaming callbacks. Messages cross into the update loop as
// snapshots; the engine keeps mutating the originals.
type ProgramNotifier struct {
	program *tea.Program
}

// NewProgramNotifier wires a notifier to a running program.
func NewProgramNotifier(p *tea.Program) *ProgramNotifier {
	return &ProgramNotifier{program: p}
}

var _ engine.Notifier = (*ProgramNotifier)(nil)

func (n *ProgramNotifier) MessageCreated(msg *model.Message) {
	n.program.Send(MessageCreatedMsg{Message: msg.Snapshot()})
}

func (n *ProgramNotifier) MessageFinalized(msg *model.Message) {
	n.program.Send(MessageFinalizedMsg{Message: msg.Snapshot()})
}

func (n *ProgramNotifier) MessageUpdated(id, content string) {
	n.program.Send(MessageUpdatedMsg{ID: id, Content: content})
}

func (n *ProgramNotifier) AttemptBoundsChanged(position thread.Position, index, count int) {
	n.program.Send(AttemptBoundsMsg{Position: position, Index: index, Count: count})
}

func (n *ProgramNotifier) MessagesDeleted(ids []string) {
	n.program.Send(MessagesDeletedMsg{IDs: ids})
}

func (n *ProgramNotifier) OperationFailed(kind engine.FailureKind, detail string) {
	n.program.Send(OperationFailedMsg{Kind: kind, Detail: detail})
}
