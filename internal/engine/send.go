// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"strings"
	"time"

	"github.com/jeranaias/braid-tui/internal/backend"
	"github.com/jeranaias/braid-tui/internal/model"
	"github.com/jeranaias/braid-tui/internal/thread"
)

// =============================================================================
// EXCHANGE
// =============================================================================

// exchange is one user/assistant pair in flight. For a fresh send both
// messages occupy new positions; for an edit both are new attempts at
// existing positions; for a retry only the assistant side is new.
type exchange struct {
	user *model.Message
	asst *model.Message

	// recordUser / recordAsst mark messages that become thread attempts
	// only once content actually lands. On outright failure they are
	// withdrawn and the pre-operation attempt state stands untouched.
	recordUser bool
	recordAsst bool

	// fresh marks a first-time send, whose user input survives a failed
	// or cancelled response.
	fresh bool

	startedAt time.Time
}

// =============================================================================
// SEND
// =============================================================================

// SendUserMessage appends the user's input at the next position, creates the
// assistant placeholder after it, and drives the request to completion. It
// blocks until the response is terminal, so callers run it off the UI loop.
func (e *Engine) SendUserMessage(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if err := e.checkOpen(); err != nil {
		return err
	}

	e.mu.Lock()
	user := model.NewUserMessage(content)
	user.Position = e.nextPos
	e.nextPos++
	e.conv.AddMessage(user)
	e.track(user)

	asst := model.NewAssistantPlaceholder()
	asst.Position = e.nextPos
	e.nextPos++
	e.conv.AddMessage(asst)
	e.track(asst)
	e.mu.Unlock()

	e.notifier.MessageCreated(user)
	e.notifier.MessageCreated(asst)

	desc := backend.SendRequest(e.conv.ID, content)
	return e.dispatch(ctx, desc, &exchange{
		user:       user,
		asst:       asst,
		recordUser: true,
		recordAsst: true,
		fresh:      true,
	})
}

// =============================================================================
// EDIT
// =============================================================================

// EditMessage replaces a user message with new content. The backend records
// the intent first; only then is the completion dispatched. A rejected
// intent leaves the conversation exactly as it was.
func (e *Engine) EditMessage(ctx context.Context, messageID, newContent string) error {
	newContent = strings.TrimSpace(newContent)
	if newContent == "" {
		return opError(IntentRejected, "edited message cannot be empty", nil)
	}
	if err := e.checkOpen(); err != nil {
		return err
	}

	e.mu.Lock()
	target := e.conv.MessageByID(messageID)
	e.mu.Unlock()
	if target == nil || target.Role != model.RoleUser {
		return opError(ReferenceNotFound, "no user message with id "+messageID, nil)
	}

	desc, err := e.client.CreateEditIntent(ctx, target.CurrentID(), newContent)
	if err != nil {
		return e.reportIntentFailure("edit", err)
	}

	ex := e.prepareReplacement(target, newContent)
	return e.dispatch(ctx, desc, ex)
}

// =============================================================================
// RETRY
// =============================================================================

// RetryMessage regenerates the assistant response at a position, optionally
// under a different model or effort level. The user side of the pair is
// untouched; on success the fresh response joins the position's attempt
// chain as the new active attempt.
func (e *Engine) RetryMessage(ctx context.Context, messageID string, overrides backend.RetryOverrides) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	e.mu.Lock()
	target := e.conv.MessageByID(messageID)
	e.mu.Unlock()
	if target == nil || target.Role != model.RoleAssistant {
		return opError(ReferenceNotFound, "no assistant message with id "+messageID, nil)
	}

	desc, err := e.client.CreateRetryIntent(ctx, target.CurrentID(), overrides)
	if err != nil {
		return e.reportIntentFailure("retry", err)
	}

	e.mu.Lock()
	asst := model.NewAssistantPlaceholder()
	asst.Position = target.Position
	e.conv.AddMessage(asst)
	e.track(asst)
	e.mu.Unlock()

	e.notifier.MessageCreated(asst)

	return e.dispatch(ctx, desc, &exchange{
		asst:       asst,
		recordAsst: true,
	})
}

// prepareReplacement stages the provisional user/assistant pair for an edit.
// The replacements render in place of the prior attempts while in flight but
// are not thread attempts until content lands.
func (e *Engine) prepareReplacement(target *model.Message, newContent string) *exchange {
	e.mu.Lock()
	defer e.mu.Unlock()

	user := model.NewUserMessage(newContent)
	user.Position = target.Position
	e.conv.AddMessage(user)
	e.track(user)

	asst := model.NewAssistantPlaceholder()
	asst.Position = target.Position + 1
	e.conv.AddMessage(asst)
	e.track(asst)

	return &exchange{
		user:       user,
		asst:       asst,
		recordUser: true,
		recordAsst: true,
	}
}

// reportIntentFailure classifies a failed intent call. No local state has
// changed at this point, so reporting is all there is to do.
func (e *Engine) reportIntentFailure(op string, err error) error {
	kind := TransportFailure
	if backend.IsIntentRejection(err) {
		kind = IntentRejected
	}
	oe := opError(kind, op+" was not accepted", err)
	e.notifier.OperationFailed(oe.Kind, oe.Detail)
	return oe
}

// =============================================================================
// ATTEMPT NAVIGATION
// =============================================================================

// NavigateAttempt moves a position to its previous or next attempt. The flip
// happens only after the backend confirms; while a response is streaming the
// request is rejected rather than queued.
func (e *Engine) NavigateAttempt(ctx context.Context, position thread.Position, direction thread.Direction) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if e.active.receiving() {
		oe := opError(IntentRejected, "wait for the current response to finish", ErrStreamActive)
		e.notifier.OperationFailed(oe.Kind, oe.Detail)
		return oe
	}

	msg, err := e.threads.SwitchAttempt(ctx, position, direction)
	if err != nil {
		switch err {
		case thread.ErrNoFurtherAttempts, thread.ErrSwitchInFlight:
			return err
		case thread.ErrUnknownPosition:
			return opError(ReferenceNotFound, "nothing to navigate at this position", err)
		}
		oe := opError(TransportFailure, "could not switch attempts", err)
		if backend.IsIntentRejection(err) {
			oe = opError(IntentRejected, "attempt switch was not accepted", err)
		}
		e.notifier.OperationFailed(oe.Kind, oe.Detail)
		return oe
	}

	e.mu.Lock()
	if e.store != nil && e.conv.ID != "" {
		if serr := e.store.SetActiveAttempt(e.conv.ID, int(position), msg.AttemptNumber); serr != nil {
			e.notifier.OperationFailed(TransportFailure, "failed to persist attempt switch")
		}
	}
	e.mu.Unlock()

	e.notifier.MessageFinalized(msg)
	e.notifyBounds(position)
	return nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteMessage removes a message, and with cascadeThread its whole attempt
// chain. Removal is backend-confirmed; the ids the server reports deleted
// are the ones removed locally.
func (e *Engine) DeleteMessage(ctx context.Context, messageID string, cascadeThread bool) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	e.mu.Lock()
	target := e.conv.MessageByID(messageID)
	e.mu.Unlock()
	if target == nil {
		return opError(ReferenceNotFound, "no message with id "+messageID, nil)
	}

	result, err := e.client.DeleteMessage(ctx, target.CurrentID(), cascadeThread)
	if err != nil {
		oe := opError(TransportFailure, "could not delete message", err)
		e.notifier.OperationFailed(oe.Kind, oe.Detail)
		return oe
	}

	deleted := result.DeletedIDs
	if len(deleted) == 0 {
		deleted = []string{target.CurrentID()}
	}

	e.mu.Lock()
	for _, id := range deleted {
		if msg := e.conv.MessageByID(id); msg != nil {
			e.rec.Forget(msg.CurrentID())
		}
		e.conv.RemoveMessage(id)
	}
	if e.store != nil {
		if serr := e.store.DeleteMessages(deleted); serr != nil {
			e.notifier.OperationFailed(TransportFailure, "failed to persist deletion")
		}
	}
	e.mu.Unlock()

	e.notifier.MessagesDeleted(deleted)
	return nil
}
