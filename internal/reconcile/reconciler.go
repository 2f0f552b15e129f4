// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"log"
	"sync"

	"github.com/jeranaias/braid-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrReferenceNotFound is returned when no tracked reference exists for a
// provisional id. The caller logs it and treats it as non-fatal: the durable
// id simply is not retro-applied and later reads re-fetch by durable id.
// Use errors.Is(err, ErrReferenceNotFound) to check for this error.
var ErrReferenceNotFound = &ReconcileError{Message: "no tracked reference for provisional id"}

// ReconcileError represents an identifier-reconciliation error.
type ReconcileError struct {
	Message string
}

// Error implements the error interface.
func (e *ReconcileError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing reconcile errors.
func (e *ReconcileError) Is(target error) bool {
	t, ok := target.(*ReconcileError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// DEPENDENT REFERENCES
// =============================================================================

// DependentRef is any secondary reference keyed by a message id: the
// conversation ordering index, a metadata-panel binding, a
// controls-this-region back-reference. Rekey must be idempotent.
type DependentRef interface {
	Rekey(provisionalID, durableID string)
}

// RekeyFunc adapts a function to the DependentRef interface.
type RekeyFunc func(provisionalID, durableID string)

// Rekey implements DependentRef.
func (f RekeyFunc) Rekey(provisionalID, durableID string) {
	f(provisionalID, durableID)
}

// =============================================================================
// RECONCILER
// =============================================================================

// entry tracks one provisional message: its id cell (the primary reference)
// and every dependent reference keyed by the same id.
type entry struct {
	cell *model.IDCell
	refs []DependentRef
}

// Reconciler tracks provisionally-identified messages until the backend
// assigns their durable ids.
type Reconciler struct {
	mu      sync.Mutex
	entries map[string]*entry
	// resolved remembers completed mappings so a repeated Reconcile with the
	// same pair is a no-op and a conflicting pair is detectable.
	resolved map[string]string
}

// New creates an empty reconciler.
func New() *Reconciler {
	return &Reconciler{
		entries:  make(map[string]*entry),
		resolved: make(map[string]string),
	}
}

// Track registers the primary reference (the message's id cell) for a
// provisional id. Tracking an already-durable cell is a no-op.
func (r *Reconciler) Track(cell *model.IDCell) {
	if cell.Durable() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := cell.Current()
	if _, ok := r.entries[id]; !ok {
		r.entries[id] = &entry{cell: cell}
	}
}

// Attach adds a dependent reference for a provisional id. Attaching to an
// untracked id is allowed; the reference is rewritten if the id is later
// both tracked and reconciled, and dropped otherwise.
func (r *Reconciler) Attach(provisionalID string, ref DependentRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[provisionalID]
	if !ok {
		e = &entry{}
		r.entries[provisionalID] = e
	}
	e.refs = append(e.refs, ref)
}

// Reconcile rewrites the primary reference and every dependent reference
// keyed by provisionalID to durableID.
//
// Calling it again with the same pair is a no-op. Calling it again with a
// different durable id for the same provisional id is a logic fault: it is
// logged and ignored rather than corrupting state. If the primary reference
// was never tracked (the response can race the optimistic render),
// ErrReferenceNotFound is returned and nothing is rewritten.
func (r *Reconciler) Reconcile(provisionalID, durableID string) error {
	r.mu.Lock()

	if prior, ok := r.resolved[provisionalID]; ok {
		r.mu.Unlock()
		if prior != durableID {
			log.Printf("reconcile: conflicting durable id for %s: have %s, got %s (ignored)",
				provisionalID, prior, durableID)
		}
		return nil
	}

	e, ok := r.entries[provisionalID]
	if !ok || e.cell == nil {
		r.mu.Unlock()
		return ErrReferenceNotFound
	}

	delete(r.entries, provisionalID)
	r.resolved[provisionalID] = durableID
	cell := e.cell
	refs := e.refs
	r.mu.Unlock()

	if !cell.Promote(durableID) {
		log.Printf("reconcile: cell for %s already durable as %s, refused %s",
			provisionalID, cell.Current(), durableID)
	}
	for _, ref := range refs {
		ref.Rekey(provisionalID, durableID)
	}
	return nil
}

// Pending returns the number of provisional ids still awaiting durable ids.
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Forget drops all state for a provisional id, for messages that are
// discarded before the backend ever confirms them.
func (r *Reconciler) Forget(provisionalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, provisionalID)
}
