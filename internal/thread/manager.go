// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package thread

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/braid-tui/internal/model"
)

// =============================================================================
// TYPES
// =============================================================================

// Position identifies a conversational slot: the logical place in the
// conversation that all attempts in one chain compete for.
type Position int

// Direction selects the adjacent attempt during navigation.
type Direction string

const (
	Previous Direction = "previous"
	Next     Direction = "next"
)

// Confirmer persists an attempt switch on the backend. It is called with the
// id of the currently active attempt's message and must return the attempt
// number the backend confirmed as newly active.
type Confirmer interface {
	SwitchActiveAttempt(ctx context.Context, messageID string, direction Direction) (int, error)
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, messageID string, direction Direction) (int, error)

// SwitchActiveAttempt implements Confirmer.
func (f ConfirmerFunc) SwitchActiveAttempt(ctx context.Context, messageID string, direction Direction) (int, error) {
	return f(ctx, messageID, direction)
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoFurtherAttempts is returned when navigation hits the first or
	// last attempt. The active attempt is unchanged; there is no wrapping.
	ErrNoFurtherAttempts = errors.New("no further attempts in that direction")

	// ErrSwitchInFlight is returned when a switch is requested while another
	// is awaiting backend confirmation. Switches are serialized, never
	// interleaved.
	ErrSwitchInFlight = errors.New("attempt switch already in flight")

	// ErrUnknownPosition is returned for a position with no recorded attempts.
	ErrUnknownPosition = errors.New("no attempts recorded at position")

	// ErrInvariantViolation indicates the single-active-attempt invariant
	// was found broken. This is a logic fault, logged loudly, never silently
	// corrected.
	ErrInvariantViolation = errors.New("attempt invariant violated")
)

// =============================================================================
// MANAGER
// =============================================================================

// chain is the ordered list of attempts competing for one position.
type chain struct {
	attempts []*model.Message // ascending AttemptNumber
	active   int              // index into attempts
}

// Manager tracks attempt chains per position and serializes switches through
// the backend.
type Manager struct {
	mu       sync.Mutex
	chains   map[Position]*chain
	inFlight bool
	confirm  Confirmer
}

// NewManager creates a manager that confirms switches through confirm.
func NewManager(confirm Confirmer) *Manager {
	return &Manager{
		chains:  make(map[Position]*chain),
		confirm: confirm,
	}
}

// =============================================================================
// RECORDING ATTEMPTS
// =============================================================================

// RecordNewAttempt appends msg as the newest attempt at position, makes it
// active, and deactivates the previously active attempt. The message's
// thread linkage fields are assigned here: a fresh thread id, the superseded
// attempt's thread id as PreviousThreadID, and the next attempt number.
func (m *Manager) RecordNewAttempt(position Position, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.chains[position]
	if !ok {
		ch = &chain{}
		m.chains[position] = ch
	}

	if msg.ThreadID == "" {
		msg.ThreadID = "thr_" + uuid.NewString()
	}
	if len(ch.attempts) > 0 {
		prev := ch.attempts[ch.active]
		msg.PreviousThreadID = prev.ThreadID
		msg.AttemptNumber = ch.attempts[len(ch.attempts)-1].AttemptNumber + 1
		prev.ActiveThread = false
	} else {
		msg.AttemptNumber = 1
	}
	msg.ActiveThread = true

	ch.attempts = append(ch.attempts, msg)
	ch.active = len(ch.attempts) - 1

	return m.checkChainLocked(position, ch)
}

// Observe registers an already-linked message (loaded from the backend or
// local history) without reassigning its thread fields.
func (m *Manager) Observe(position Position, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.chains[position]
	if !ok {
		ch = &chain{}
		m.chains[position] = ch
	}
	ch.attempts = append(ch.attempts, msg)
	if msg.ActiveThread {
		ch.active = len(ch.attempts) - 1
	}
	return m.checkChainLocked(position, ch)
}

// =============================================================================
// SWITCHING
// =============================================================================

// SwitchAttempt moves the active flag to the adjacent attempt, confirmed by
// the backend first. At a boundary it returns ErrNoFurtherAttempts and
// changes nothing. On any confirmation failure the active attempt remains
// exactly what it was before the call.
func (m *Manager) SwitchAttempt(ctx context.Context, position Position, direction Direction) (*model.Message, error) {
	m.mu.Lock()
	ch, ok := m.chains[position]
	if !ok {
		m.mu.Unlock()
		return nil, ErrUnknownPosition
	}
	if m.inFlight {
		m.mu.Unlock()
		return nil, ErrSwitchInFlight
	}

	target := ch.active
	switch direction {
	case Previous:
		target--
	case Next:
		target++
	default:
		m.mu.Unlock()
		return nil, fmt.Errorf("unknown direction %q", direction)
	}
	if target < 0 || target >= len(ch.attempts) {
		m.mu.Unlock()
		return nil, ErrNoFurtherAttempts
	}

	prior := ch.attempts[ch.active]
	m.inFlight = true
	m.mu.Unlock()

	confirmed, err := m.confirm.SwitchActiveAttempt(ctx, prior.CurrentID(), direction)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false
	if err != nil {
		// No optimistic flip: state is untouched.
		return nil, err
	}

	// The chain may have changed while the backend was confirming. The flip
	// is only valid relative to the attempt the confirmation was issued
	// against; anything else stands untouched.
	if ch.attempts[ch.active] != prior {
		log.Printf("thread: active attempt changed during switch confirmation at position %d", position)
		return nil, fmt.Errorf("%w: active attempt changed during switch confirmation at position %d",
			ErrInvariantViolation, position)
	}

	idx := -1
	for i, att := range ch.attempts {
		if att.AttemptNumber == confirmed {
			idx = i
			break
		}
	}
	if idx == -1 {
		log.Printf("thread: backend confirmed unknown attempt %d at position %d", confirmed, position)
		return nil, fmt.Errorf("%w: confirmed attempt %d not present", ErrInvariantViolation, confirmed)
	}

	prior.ActiveThread = false
	ch.attempts[idx].ActiveThread = true
	ch.active = idx

	if err := m.checkChainLocked(position, ch); err != nil {
		return nil, err
	}
	return ch.attempts[idx], nil
}

// =============================================================================
// NAVIGATION BOUNDS
// =============================================================================

// AttemptCount returns the number of attempts at a position.
func (m *Manager) AttemptCount(position Position) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.chains[position]
	if !ok {
		return 0
	}
	return len(ch.attempts)
}

// CurrentIndex returns the 1-based index of the active attempt at a
// position, or 0 if the position has no attempts.
func (m *Manager) CurrentIndex(position Position) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.chains[position]
	if !ok {
		return 0
	}
	return ch.active + 1
}

// Bounds reports whether backward and forward navigation is possible. The
// rendering layer uses this to decide whether to show navigation controls.
func (m *Manager) Bounds(position Position) (canPrevious, canNext bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.chains[position]
	if !ok {
		return false, false
	}
	return ch.active > 0, ch.active < len(ch.attempts)-1
}

// ActiveAttempt returns the active message at a position, or nil.
func (m *Manager) ActiveAttempt(position Position) *model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.chains[position]
	if !ok || len(ch.attempts) == 0 {
		return nil
	}
	return ch.attempts[ch.active]
}

// =============================================================================
// INVARIANT CHECKING
// =============================================================================

// checkChainLocked verifies that exactly one attempt in the chain is active
// and that attempt numbers strictly increase. Violations are logged loudly
// and reported, never silently repaired.
func (m *Manager) checkChainLocked(position Position, ch *chain) error {
	activeCount := 0
	lastNum := 0
	for _, att := range ch.attempts {
		if att.ActiveThread {
			activeCount++
		}
		if att.AttemptNumber <= lastNum {
			log.Printf("thread: non-monotonic attempt numbers at position %d", position)
			return fmt.Errorf("%w: attempt numbers not strictly increasing at position %d",
				ErrInvariantViolation, position)
		}
		lastNum = att.AttemptNumber
	}
	if len(ch.attempts) > 0 && activeCount != 1 {
		log.Printf("thread: %d active attempts at position %d, want exactly 1", activeCount, position)
		return fmt.Errorf("%w: %d active attempts at position %d",
			ErrInvariantViolation, activeCount, position)
	}
	return nil
}
