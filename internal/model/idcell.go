// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ProvisionalPrefix marks client-minted message identifiers that have not
// yet been confirmed by the backend.
const ProvisionalPrefix = "tmp_"

// NewProvisionalID mints a provisional message identifier.
func NewProvisionalID() string {
	return ProvisionalPrefix + uuid.NewString()
}

// IsProvisionalID reports whether id is a client-minted provisional id.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// =============================================================================
// ID CELL
// =============================================================================

// IDCell holds the current identifier of a message. Callers that need "the
// id of this message" dereference the cell at call time instead of capturing
// the id early, which keeps every operation correct across the moment the
// backend assigns the durable id.
//
// IMPORTANT: IDCell must be used as a pointer. A message and all of its
// dependent references share one cell.
type IDCell struct {
	mu      sync.Mutex
	id      string
	durable bool
}

// NewIDCell creates a cell holding a freshly minted provisional id.
func NewIDCell() *IDCell {
	return &IDCell{id: NewProvisionalID()}
}

// NewDurableIDCell creates a cell that already holds a durable id, for
// messages loaded from the backend or local history.
func NewDurableIDCell(id string) *IDCell {
	return &IDCell{id: id, durable: true}
}

// Current returns the identifier the message is addressable by right now.
func (c *IDCell) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Durable reports whether the cell holds a backend-assigned id.
func (c *IDCell) Durable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.durable
}

// Promote replaces the provisional id with the durable id assigned by the
// backend. Promoting twice with the same durable id is a no-op; promoting
// with a different id after the cell is already durable returns false and
// leaves the cell unchanged (the caller logs this as a logic fault).
func (c *IDCell) Promote(durable string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.durable {
		return c.id == durable
	}
	c.id = durable
	c.durable = true
	return true
}
