// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jeranaias/braid-tui/internal/backend"
	"github.com/jeranaias/braid-tui/internal/model"
	"github.com/jeranaias/braid-tui/internal/stream"
	"github.com/jeranaias/braid-tui/internal/thread"
)

// =============================================================================
// DISPATCH
// =============================================================================

// dispatch drives one prepared exchange to a terminal outcome. The streamed
// path is preferred; if the stream transport cannot even be opened, the
// request falls back to the non-streaming path exactly once. A failure after
// the first unit arrived never falls back.
func (e *Engine) dispatch(ctx context.Context, desc backend.RequestDescriptor, ex *exchange) error {
	ex.startedAt = time.Now()

	if e.opts.Streaming && !e.opts.AudioMode {
		err := e.streamCompletion(ctx, desc, ex)
		if err == nil {
			return nil
		}
		if errors.Is(err, stream.ErrAborted) {
			e.cancelExchange(ex)
			return nil
		}
		log.Printf("engine: stream open failed, falling back to non-streaming: %v", err)
	}
	return e.completeNonStreaming(ctx, desc, ex)
}

// =============================================================================
// STREAMED PATH
// =============================================================================

// streamCompletion runs one stream session for the exchange. Installing the
// session implicitly aborts any prior one: at most one stream is live per
// conversation view.
func (e *Engine) streamCompletion(ctx context.Context, desc backend.RequestDescriptor, ex *exchange) error {
	sess := stream.NewSession(ex.asst.CurrentID(), e.opts.StreamDeadline)
	if prior := e.active.swap(sess); prior != nil {
		prior.Abort()
	}
	defer e.active.clear(sess)

	cb := stream.Callbacks{
		OnFragment: func(id, fragment, full string) {
			e.mu.Lock()
			ex.asst.AppendFragment(fragment)
			e.mu.Unlock()
			// Every fragment lands in the message; only redraw
			// notifications are throttled.
			if e.redraw.Allow() {
				e.notifier.MessageUpdated(id, full)
			}
		},
		OnCompleted: func(id, content string, result *backend.CompletionResult) {
			e.finalizeCompleted(ex, content, result, sess)
		},
		OnInterrupted: func(id, partial, reason string, err error) {
			e.finalizeInterrupted(ex, partial, reason, err)
		},
	}

	return sess.Run(ctx, func(runCtx context.Context) (*backend.StreamReader, error) {
		return e.client.OpenCompletionStream(runCtx, desc)
	}, cb)
}

// =============================================================================
// NON-STREAMED PATH
// =============================================================================

// completeNonStreaming performs the request as a single round trip. Used
// when streaming is disabled, in audio mode, and as the fallback for a
// stream that never opened.
func (e *Engine) completeNonStreaming(ctx context.Context, desc backend.RequestDescriptor, ex *exchange) error {
	result, err := e.client.CreateCompletion(ctx, desc)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			e.cancelExchange(ex)
			return nil
		}
		kind := TransportFailure
		role := model.RoleError
		detail := "the request could not be completed"
		var be *backend.BackendError
		if errors.As(err, &be) {
			kind = ServerReportedError
			detail = be.Message
			if backend.IsSafetyRejection(err) {
				role = model.RoleSafety
			}
		}
		e.failExchange(ex, kind, role, detail)
		return opError(kind, detail, err)
	}

	e.finalizeCompleted(ex, result.Content, result, nil)
	return nil
}

// =============================================================================
// FINALIZATION
// =============================================================================

// finalizeCompleted lands a successful completion: final content, metadata,
// thread attempt accounting, and identifier reconciliation, in that order.
func (e *Engine) finalizeCompleted(ex *exchange, content string, result *backend.CompletionResult, sess *stream.Session) {
	e.mu.Lock()
	asst := ex.asst
	asst.FinalizeStream()
	if asst.Content != content {
		asst.Content = content
	}
	asst.Citations = result.Citations
	asst.Attribution = result.Attribution
	asst.TotalDuration = time.Since(ex.startedAt)
	if sess != nil {
		asst.TimeToFirstByte, asst.FragmentCount = sess.Stats()
	}

	e.conv.ApplyServerIdentity(result.ConversationID, result.ConversationTitle)
	e.recordAttemptsLocked(ex)

	if ex.user != nil {
		e.reconcileID(ex.user, result.FinalUserMessageID)
	}
	e.reconcileID(asst, result.FinalMessageID)

	if ex.user != nil {
		e.persist(ex.user)
	}
	e.persist(asst)
	e.mu.Unlock()

	if ex.user != nil {
		e.notifier.MessageFinalized(ex.user)
		e.notifyBounds(thread.Position(ex.user.Position))
	}
	e.notifier.MessageFinalized(asst)
	e.notifyBounds(thread.Position(asst.Position))
}

// finalizeInterrupted lands a response that ended before its terminal unit.
// Partial content stays on screen, clearly marked; a response that never
// produced anything visible is withdrawn and replaced with an explanation.
func (e *Engine) finalizeInterrupted(ex *exchange, partial, reason string, err error) {
	kind := TransportFailure
	role := model.RoleError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = TimedOut
	default:
		var sue *stream.ServerUnitError
		if errors.As(err, &sue) {
			kind = ServerReportedError
			if sue.Code == "safety_rejection" {
				role = model.RoleSafety
			}
		}
	}

	e.mu.Lock()
	asst := ex.asst
	asst.FinalizeStream()
	// A server-supplied partial is authoritative over the accumulation.
	if partial != "" && asst.Content != partial {
		asst.Content = partial
	}
	hasContent := asst.Content != ""
	e.mu.Unlock()

	if !hasContent {
		e.failExchange(ex, kind, role, reason)
		return
	}

	e.mu.Lock()
	asst.MarkInterrupted(reason)
	asst.TotalDuration = time.Since(ex.startedAt)
	e.recordAttemptsLocked(ex)
	e.mu.Unlock()

	if ex.user != nil {
		e.notifier.MessageFinalized(ex.user)
		e.notifyBounds(thread.Position(ex.user.Position))
	}
	e.notifier.MessageFinalized(asst)
	e.notifyBounds(thread.Position(asst.Position))
	e.notifier.OperationFailed(kind, reason)
}

// recordAttemptsLocked enrolls the exchange's pending messages as thread
// attempts. Until this runs the pre-operation attempt state is untouched,
// so a withdrawn exchange leaves no trace in the chains.
func (e *Engine) recordAttemptsLocked(ex *exchange) {
	if ex.recordUser && ex.user != nil {
		if err := e.threads.RecordNewAttempt(thread.Position(ex.user.Position), ex.user); err != nil {
			log.Printf("engine: record user attempt at %d: %v", ex.user.Position, err)
		}
		ex.recordUser = false
	}
	if ex.recordAsst {
		if err := e.threads.RecordNewAttempt(thread.Position(ex.asst.Position), ex.asst); err != nil {
			log.Printf("engine: record assistant attempt at %d: %v", ex.asst.Position, err)
		}
		ex.recordAsst = false
	}
}

// =============================================================================
// FAILURE AND CANCEL
// =============================================================================

// failExchange withdraws an exchange that produced nothing visible. The
// placeholders come off screen; a fresh send keeps the user's input and gets
// a role-appropriate explanatory message in place of the response.
func (e *Engine) failExchange(ex *exchange, kind FailureKind, role model.Role, detail string) {
	var removed []string
	var replacement *model.Message

	e.mu.Lock()
	if ex.fresh {
		// The user's input stands even though the response failed.
		ex.recordAsst = false
		e.recordAttemptsLocked(ex)

		removed = append(removed, e.withdrawLocked(ex.asst))
		replacement = model.NewMessage(role, detail)
		replacement.Position = ex.asst.Position
		e.conv.AddMessage(replacement)
	} else {
		if ex.recordUser && ex.user != nil {
			removed = append(removed, e.withdrawLocked(ex.user))
			ex.recordUser = false
		}
		removed = append(removed, e.withdrawLocked(ex.asst))
		ex.recordAsst = false
	}
	e.mu.Unlock()

	e.notifier.MessagesDeleted(removed)
	if replacement != nil {
		e.notifier.MessageCreated(replacement)
	}
	e.notifier.OperationFailed(kind, detail)
}

// cancelExchange handles a user abort: accumulated content is discarded and
// nothing is finalized. A fresh send keeps the user's input on screen.
func (e *Engine) cancelExchange(ex *exchange) {
	var removed []string

	e.mu.Lock()
	if ex.fresh {
		if ex.recordUser && ex.user != nil {
			if err := e.threads.RecordNewAttempt(thread.Position(ex.user.Position), ex.user); err != nil {
				log.Printf("engine: record user attempt at %d: %v", ex.user.Position, err)
			}
			ex.recordUser = false
		}
	} else if ex.recordUser && ex.user != nil {
		removed = append(removed, e.withdrawLocked(ex.user))
		ex.recordUser = false
	}
	removed = append(removed, e.withdrawLocked(ex.asst))
	ex.recordAsst = false
	e.mu.Unlock()

	e.notifier.MessagesDeleted(removed)
}

// withdrawLocked removes a provisional message from the conversation and
// the reconciler, returning its id. Caller holds e.mu.
func (e *Engine) withdrawLocked(msg *model.Message) string {
	id := msg.CurrentID()
	e.rec.Forget(id)
	e.conv.RemoveMessage(id)
	return id
}
