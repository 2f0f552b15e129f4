// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/braid-tui/internal/backend"
)

// DefaultDeadline is the wall-clock limit for one streamed response.
const DefaultDeadline = 5 * time.Minute

// =============================================================================
// STATE MACHINE
// =============================================================================

// State is the lifecycle state of a stream session.
type State int

const (
	Idle State = iota
	Connecting
	Receiving
	Completed
	ServerError
	TransportError
	TimedOut
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Receiving:
		return "receiving"
	case Completed:
		return "completed"
	case ServerError:
		return "server_error"
	case TransportError:
		return "transport_error"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final for the session.
func (s State) Terminal() bool {
	return s == Completed || s == ServerError || s == TransportError || s == TimedOut
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrAborted is returned when the session was cancelled by the user
	// (new request, navigation away, explicit cancel). The buffer is
	// discarded and no message is finalized.
	ErrAborted = errors.New("stream session aborted")

	// ErrSessionUsed is returned when Run is called on a session that has
	// already run. Sessions are single-use.
	ErrSessionUsed = errors.New("stream session already used")
)

// ServerUnitError wraps a server-reported error unit.
type ServerUnitError struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *ServerUnitError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server error (%s): %s", e.Code, e.Message)
	}
	return "server error: " + e.Message
}

// =============================================================================
// CALLBACKS
// =============================================================================

// Callbacks receive the session's externally visible events. Each callback
// runs on the session goroutine; handlers must not block.
type Callbacks struct {
	// OnFragment is called for every fragment, in arrival order, with the
	// fragment and the full accumulated buffer. The full buffer is supplied
	// because downstream formatting transforms are only valid on complete
	// content; redraw throttling, if any, is the receiver's concern.
	OnFragment func(provisionalID, fragment, full string)

	// OnCompleted delivers the finalized content (the exact concatenation
	// of every fragment) plus the completion metadata.
	OnCompleted func(provisionalID, content string, result *backend.CompletionResult)

	// OnInterrupted delivers whatever partial content was received when the
	// stream ended in ServerError, TransportError, or TimedOut.
	OnInterrupted func(provisionalID, partial, reason string, err error)
}

// =============================================================================
// SESSION
// =============================================================================

// Opener opens the chunked transport read. It is the only transport
// dependency the session has, which keeps the state machine testable.
type Opener func(ctx context.Context) (*backend.StreamReader, error)

// Session is the ephemeral state of one in-flight streamed response.
type Session struct {
	mu    sync.Mutex
	state State

	provisionalID string
	startedAt     time.Time
	deadline      time.Duration
	cancel        context.CancelFunc
	used          bool

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	buffer strings.Builder

	// Statistics
	firstFragmentAt time.Time
	fragmentCount   int
}

// NewSession creates a session for the assistant message identified by
// provisionalID. A non-positive deadline selects DefaultDeadline.
func NewSession(provisionalID string, deadline time.Duration) *Session {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Session{
		state:         Idle,
		provisionalID: provisionalID,
		deadline:      deadline,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ProvisionalID returns the assistant message id the session renders into.
func (s *Session) ProvisionalID() string {
	return s.provisionalID
}

// Abort cancels the transport read. The buffer is discarded; no message is
// finalized through an abort. Safe to call at any time, more than once.
func (s *Session) Abort() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Stats returns time-to-first-fragment and the fragment count.
func (s *Session) Stats() (time.Duration, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstFragmentAt.IsZero() {
		return 0, s.fragmentCount
	}
	return s.firstFragmentAt.Sub(s.startedAt), s.fragmentCount
}

// setState transitions the state machine.
func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// =============================================================================
// RUN LOOP
// =============================================================================

// Run opens the transport and consumes units until a terminal condition.
// Blocks until the session is terminal or aborted.
//
// An error from open itself (before any unit is read) is returned with the
// session in TransportError and no callback fired — the caller may fall back
// to the non-streaming path for this one request. Once the first unit has
// been read there is no fallback: errors finalize through OnInterrupted.
func (s *Session) Run(ctx context.Context, open Opener, cb Callbacks) error {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		return ErrSessionUsed
	}
	s.used = true
	s.startedAt = time.Now()
	s.state = Connecting

	runCtx, cancel := context.WithDeadline(ctx, s.startedAt.Add(s.deadline))
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	reader, err := open(runCtx)
	if err != nil {
		s.setState(TransportError)
		return fmt.Errorf("failed to open stream: %w", err)
	}
	defer reader.Close()

	s.setState(Receiving)

	for {
		unit, err := reader.Next()
		if err != nil {
			return s.finishReadError(ctx, runCtx, err, cb)
		}

		switch {
		case unit.Error != nil:
			// Whatever partial content shipped is preserved, not discarded.
			partial := s.buffer.String()
			if unit.PartialContent != "" {
				partial = unit.PartialContent
			}
			s.setState(ServerError)
			if cb.OnInterrupted != nil {
				cb.OnInterrupted(s.provisionalID, partial, "Response interrupted by the server",
					&ServerUnitError{Code: unit.Error.Code, Message: unit.Error.Message})
			}
			return nil

		case unit.Done:
			s.setState(Completed)
			result := unit.Result()
			if cb.OnCompleted != nil {
				cb.OnCompleted(s.provisionalID, s.buffer.String(), &result)
			}
			return nil

		default:
			s.applyFragment(unit.Content, cb)
		}
	}
}

// applyFragment appends one fragment in arrival order and delivers it with
// the full accumulated buffer.
func (s *Session) applyFragment(fragment string, cb Callbacks) {
	if fragment == "" {
		return
	}

	s.mu.Lock()
	s.buffer.WriteString(fragment)
	s.fragmentCount++
	if s.firstFragmentAt.IsZero() {
		s.firstFragmentAt = time.Now()
	}
	full := s.buffer.String()
	s.mu.Unlock()

	if cb.OnFragment != nil {
		cb.OnFragment(s.provisionalID, fragment, full)
	}
}

// finishReadError classifies a mid-stream read failure: user abort (no
// finalization), deadline (TimedOut), or transport loss. A stream that ends
// without a done unit is a transport failure, not a completion.
func (s *Session) finishReadError(parent, runCtx context.Context, err error, cb Callbacks) error {
	partial := s.buffer.String()

	switch {
	case parent.Err() != nil || errors.Is(err, context.Canceled):
		// User-initiated cancellation: discard, never finalize.
		s.setState(TransportError)
		return ErrAborted

	case errors.Is(err, context.DeadlineExceeded) || runCtx.Err() == context.DeadlineExceeded:
		s.setState(TimedOut)
		if cb.OnInterrupted != nil {
			cb.OnInterrupted(s.provisionalID, partial, "Response timed out",
				fmt.Errorf("stream deadline (%s) elapsed: %w", s.deadline, context.DeadlineExceeded))
		}
		return nil

	default:
		if err == io.EOF {
			err = errors.New("stream ended without a terminal unit")
		}
		s.setState(TransportError)
		if cb.OnInterrupted != nil {
			cb.OnInterrupted(s.provisionalID, partial, "Connection lost", err)
		}
		return nil
	}
}
