// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds every message of a chat, including superseded attempts,
// plus metadata. The conversation id is backend-assigned; until the first
// completion returns it the conversation is unsaved and ID is empty.
type Conversation struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages, in creation order. Superseded attempts stay in the slice
	// with ActiveThread=false.
	Messages []*Message `json:"messages"`

	// order maps the current id of each message to its index in Messages.
	// It is one of the dependent references rewritten when a provisional id
	// is promoted.
	order map[string]int
}

// NewConversation creates an empty, not-yet-persisted conversation.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
		order:     make(map[string]int),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message and indexes it by its current id.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.order[msg.CurrentID()] = len(c.Messages) - 1
	c.UpdatedAt = time.Now()
}

// MessageByID returns the message currently addressable by id, or nil.
func (c *Conversation) MessageByID(id string) *Message {
	idx, ok := c.order[id]
	if !ok {
		return nil
	}
	return c.Messages[idx]
}

// RemoveMessage removes the message addressable by id.
func (c *Conversation) RemoveMessage(id string) bool {
	idx, ok := c.order[id]
	if !ok {
		return false
	}
	c.Messages = append(c.Messages[:idx], c.Messages[idx+1:]...)
	delete(c.order, id)
	// Reindex everything after the removed slot.
	for i := idx; i < len(c.Messages); i++ {
		c.order[c.Messages[i].CurrentID()] = i
	}
	c.UpdatedAt = time.Now()
	return true
}

// Rekey moves the ordering-index entry from a provisional id to the durable
// id. It implements the dependent-reference contract used by the reconciler.
func (c *Conversation) Rekey(provisionalID, durableID string) {
	idx, ok := c.order[provisionalID]
	if !ok {
		return
	}
	delete(c.order, provisionalID)
	c.order[durableID] = idx
}

// Snapshot returns a deep copy of the conversation for readers outside the
// engine. Message copies share their synchronized id cells, so ids stay
// current across reconciliation; everything else is detached from the live
// state.
func (c *Conversation) Snapshot() *Conversation {
	out := &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Messages:  make([]*Message, len(c.Messages)),
		order:     make(map[string]int, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		s := msg.Snapshot()
		out.Messages[i] = s
		out.order[s.CurrentID()] = i
	}
	return out
}

// ActiveMessages returns the displayed view: every message whose attempt is
// active, in conversation order.
func (c *Conversation) ActiveMessages() []*Message {
	active := make([]*Message, 0, len(c.Messages))
	for _, msg := range c.Messages {
		if msg.ActiveThread {
			active = append(active, msg)
		}
	}
	return active
}

// LastUserMessage returns the most recent active user message.
func (c *Conversation) LastUserMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser && c.Messages[i].ActiveThread {
			return c.Messages[i]
		}
	}
	return nil
}

// MessageCount returns the number of messages, superseded attempts included.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// ApplyServerIdentity records the backend-assigned conversation id and title
// delivered with a completion.
func (c *Conversation) ApplyServerIdentity(id, title string) {
	if id != "" && c.ID == "" {
		c.ID = id
	}
	if title != "" {
		c.Title = title
	}
	c.UpdatedAt = time.Now()
}

// GetTitle returns the conversation title or a default.
func (c *Conversation) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "New Conversation"
}
