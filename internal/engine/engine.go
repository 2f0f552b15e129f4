// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/braid-tui/internal/backend"
	"github.com/jeranaias/braid-tui/internal/model"
	"github.com/jeranaias/braid-tui/internal/reconcile"
	"github.com/jeranaias/braid-tui/internal/stream"
	"github.com/jeranaias/braid-tui/internal/thread"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures an engine instance.
type Options struct {
	// Streaming selects the chunked delivery path when true. The engine
	// still falls back to the non-streaming path for a request whose
	// transport cannot be opened.
	Streaming bool

	// AudioMode forces the non-streaming path: a rendering mode that
	// produces audio needs the complete response in one piece.
	AudioMode bool

	// StreamDeadline bounds one streamed response. Zero selects the
	// default.
	StreamDeadline time.Duration

	// RedrawsPerSecond caps progressive-redraw notifications. Zero selects
	// a sensible default. The accumulated content is always complete; only
	// notification frequency is limited.
	RedrawsPerSecond int
}

// DefaultOptions returns the default engine configuration.
func DefaultOptions() Options {
	return Options{
		Streaming:        true,
		StreamDeadline:   stream.DefaultDeadline,
		RedrawsPerSecond: 30,
	}
}

// =============================================================================
// HISTORY STORE
// =============================================================================

// HistoryStore is the local persistence the engine writes finalized state
// through. A nil store disables persistence.
type HistoryStore interface {
	SaveConversation(conv *model.Conversation) error
	SaveMessage(conversationID string, msg *model.Message) error
	SetActiveAttempt(conversationID string, position, attemptNumber int) error
	DeleteMessages(ids []string) error
}

// =============================================================================
// ACTIVE SESSION HOLDER
// =============================================================================

// sessionHolder guards the single mutable active-session reference.
// IMPORTANT: it has its own mutex so CancelActiveStream never blocks behind
// an operation in flight.
type sessionHolder struct {
	mu      sync.Mutex
	session *stream.Session
}

// swap installs a new session, returning the prior one (which the caller
// aborts). Starting a second session implicitly cancels the first.
func (h *sessionHolder) swap(s *stream.Session) *stream.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	prior := h.session
	h.session = s
	return prior
}

// clear removes the session if it is still the installed one.
func (h *sessionHolder) clear(s *stream.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == s {
		h.session = nil
	}
}

// abort cancels the installed session, if any.
func (h *sessionHolder) abort() {
	h.mu.Lock()
	s := h.session
	h.session = nil
	h.mu.Unlock()
	if s != nil {
		s.Abort()
	}
}

// receiving reports whether a session is currently consuming a stream.
func (h *sessionHolder) receiving() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session != nil && !h.session.State().Terminal()
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the conversation engine for one open conversation view.
type Engine struct {
	mu sync.Mutex

	opts     Options
	client   *backend.Client
	store    HistoryStore
	notifier Notifier

	rec     *reconcile.Reconciler
	threads *thread.Manager
	conv    *model.Conversation
	nextPos int

	active sessionHolder
	redraw *rate.Limiter
	closed bool
}

// New creates an engine around a fresh conversation.
func New(client *backend.Client, store HistoryStore, notifier Notifier, opts Options) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if opts.StreamDeadline <= 0 {
		opts.StreamDeadline = stream.DefaultDeadline
	}
	if opts.RedrawsPerSecond <= 0 {
		opts.RedrawsPerSecond = DefaultOptions().RedrawsPerSecond
	}

	e := &Engine{
		opts:     opts,
		client:   client,
		store:    store,
		notifier: notifier,
		rec:      reconcile.New(),
		conv:     model.NewConversation(),
		redraw:   rate.NewLimiter(rate.Limit(opts.RedrawsPerSecond), 1),
	}
	e.threads = thread.NewManager(thread.ConfirmerFunc(
		func(ctx context.Context, messageID string, direction thread.Direction) (int, error) {
			result, err := client.SwitchActiveAttempt(ctx, messageID, string(direction))
			if err != nil {
				return 0, err
			}
			return result.NewActiveAttemptNumber, nil
		}))
	return e
}

// SetNotifier installs the rendering-layer notifier. Must be called before
// the first operation; the renderer usually cannot exist until after the
// engine does.
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n == nil {
		n = NopNotifier{}
	}
	e.notifier = n
}

// Conversation returns the live conversation this engine drives. Safe only
// while no operation is in flight; concurrent readers use Snapshot.
func (e *Engine) Conversation() *model.Conversation {
	return e.conv
}

// Snapshot returns a copy of the conversation taken under the engine lock.
// The rendering layer reads from snapshots: the live conversation is mutated
// from the engine's own goroutines while a response streams in.
func (e *Engine) Snapshot() *model.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.Snapshot()
}

// ResumeConversation seeds the engine with a conversation loaded from local
// history. Every stored attempt is observed into the thread chains with its
// linkage intact. Must be called before the first operation.
func (e *Engine) ResumeConversation(conv *model.Conversation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conv.MessageCount() > 0 {
		return opError(InvariantViolation, "conversation already in progress", nil)
	}

	for _, msg := range conv.Messages {
		if err := e.threads.Observe(thread.Position(msg.Position), msg); err != nil {
			return opError(InvariantViolation, "stored conversation is inconsistent", err)
		}
		if msg.Position >= e.nextPos {
			e.nextPos = msg.Position + 1
		}
	}
	e.conv = conv
	return nil
}

// Threads exposes attempt counts and navigation bounds to the rendering
// layer.
func (e *Engine) Threads() *thread.Manager {
	return e.threads
}

// CancelActiveStream aborts any in-flight stream session. The session's
// buffer is discarded; no message is finalized through a cancel.
func (e *Engine) CancelActiveStream() {
	e.active.abort()
}

// Close tears the engine down: any in-flight work is aborted. Called when
// the conversation view is left.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.active.abort()
}

// AttachReference registers a companion-region reference (for example a
// metadata-panel binding) keyed by a message's provisional id, so it is
// rewritten when the durable id arrives.
func (e *Engine) AttachReference(provisionalID string, ref reconcile.DependentRef) {
	e.rec.Attach(provisionalID, ref)
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

// checkOpen fails fast on a closed engine.
func (e *Engine) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

// track registers a provisional message with the reconciler: the id cell is
// the primary reference, the conversation's ordering index a dependent one.
func (e *Engine) track(msg *model.Message) {
	e.rec.Track(msg.ID)
	e.rec.Attach(msg.CurrentID(), e.conv)
}

// reconcileID promotes one message to its durable id. A missing reference is
// logged and swallowed: the durable id is simply not retro-applied and later
// reads re-fetch by durable id.
func (e *Engine) reconcileID(msg *model.Message, durableID string) {
	if durableID == "" || msg.ID.Durable() {
		return
	}
	if err := e.rec.Reconcile(msg.CurrentID(), durableID); err != nil {
		log.Printf("engine: reconcile %s -> %s: %v", msg.CurrentID(), durableID, err)
	}
}

// persist writes a finalized message through the history store, best effort.
func (e *Engine) persist(msg *model.Message) {
	if e.store == nil || e.conv.ID == "" {
		return
	}
	if err := e.store.SaveConversation(e.conv); err != nil {
		log.Printf("engine: persist conversation: %v", err)
	}
	if err := e.store.SaveMessage(e.conv.ID, msg); err != nil {
		log.Printf("engine: persist message %s: %v", msg.CurrentID(), err)
	}
}

// notifyBounds pushes fresh navigation bounds for a position.
func (e *Engine) notifyBounds(position thread.Position) {
	e.notifier.AttemptBoundsChanged(position,
		e.threads.CurrentIndex(position), e.threads.AttemptCount(position))
}
