// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender or kind of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFile      Role = "file"
	RoleImage     Role = "image"
	RoleSafety    Role = "safety"
	RoleError     Role = "error"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleFile:
		return "File"
	case RoleImage:
		return "Image"
	case RoleSafety:
		return "Safety"
	case RoleError:
		return "Error"
	default:
		return string(r)
	}
}

// =============================================================================
// CITATION / ATTRIBUTION
// =============================================================================

// Citation is a source reference attached to a finalized assistant message.
type Citation struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Attribution records which model/agent produced an assistant message.
type Attribution struct {
	Model string `json:"model,omitempty"`
	Agent string `json:"agent,omitempty"`
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a conversation.
//
// The identifier lives in ID, a shared IDCell: it starts provisional and is
// promoted to the backend-assigned durable id by the reconciler. Thread
// fields link competing attempts at the same conversational position.
type Message struct {
	// Identity
	ID        *IDCell   `json:"-"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content string `json:"content"`

	// Attempt threading
	Position         int    `json:"position"`
	ThreadID         string `json:"thread_id"`
	PreviousThreadID string `json:"previous_thread_id,omitempty"`
	AttemptNumber    int    `json:"attempt_number"`
	ActiveThread     bool   `json:"active_thread"`

	// Streaming state (not persisted)
	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	IsStreaming   bool            `json:"-"`
	streamContent strings.Builder `json:"-"`

	// Interruption (server error or timeout mid-stream)
	Interrupted     bool   `json:"interrupted,omitempty"`
	InterruptReason string `json:"interrupt_reason,omitempty"`

	// Final metadata (assistant messages, set on completion)
	Citations   []Citation  `json:"citations,omitempty"`
	Attribution Attribution `json:"attribution,omitempty"`

	// Stream statistics (assistant messages)
	TimeToFirstByte time.Duration `json:"ttfb_ns,omitempty"`
	TotalDuration   time.Duration `json:"total_duration_ns,omitempty"`
	FragmentCount   int           `json:"fragment_count,omitempty"`
}

// NewMessage creates a new message with a provisional id and a fresh thread.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:            NewIDCell(),
		Role:          role,
		Content:       content,
		ThreadID:      newThreadID(),
		AttemptNumber: 1,
		ActiveThread:  true,
		Timestamp:     time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantPlaceholder creates the optimistic assistant message that a
// stream or completion will fill in.
func NewAssistantPlaceholder() *Message {
	m := NewMessage(RoleAssistant, "")
	m.IsStreaming = true
	return m
}

// NewSafetyMessage creates a message carrying a policy/safety explanation.
func NewSafetyMessage(content string) *Message {
	return NewMessage(RoleSafety, content)
}

// NewErrorMessage creates a message carrying a failure explanation.
func NewErrorMessage(content string) *Message {
	return NewMessage(RoleError, content)
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// CurrentID returns the id the message is addressable by right now.
func (m *Message) CurrentID() string {
	return m.ID.Current()
}

// AppendFragment appends a content fragment to a streaming message.
func (m *Message) AppendFragment(fragment string) {
	if m.IsStreaming {
		m.streamContent.WriteString(fragment)
		m.FragmentCount++
	}
}

// FinalizeStream merges the accumulated fragments into Content and ends
// streaming. The finalized content is the exact concatenation of every
// fragment in arrival order.
func (m *Message) FinalizeStream() {
	if !m.IsStreaming {
		return
	}
	m.Content = m.streamContent.String()
	m.streamContent.Reset()
	m.IsStreaming = false
}

// MarkInterrupted finalizes a streaming message after a server error or
// timeout, preserving whatever partial content was received.
func (m *Message) MarkInterrupted(reason string) {
	m.FinalizeStream()
	m.Interrupted = true
	m.InterruptReason = reason
}

// DisplayContent returns the content to display (streaming or final).
func (m *Message) DisplayContent() string {
	if m.IsStreaming && m.streamContent.Len() > 0 {
		return m.streamContent.String()
	}
	return m.Content
}

// Snapshot returns a copy of the message for readers outside the engine.
// The id cell is shared (it is internally synchronized, and dependent
// references must see promotions); streaming content is resolved into
// Content at copy time, so the copy never touches the live builder.
func (m *Message) Snapshot() *Message {
	s := &Message{
		ID:               m.ID,
		Role:             m.Role,
		Timestamp:        m.Timestamp,
		Content:          m.DisplayContent(),
		Position:         m.Position,
		ThreadID:         m.ThreadID,
		PreviousThreadID: m.PreviousThreadID,
		AttemptNumber:    m.AttemptNumber,
		ActiveThread:     m.ActiveThread,
		IsStreaming:      m.IsStreaming,
		Interrupted:      m.Interrupted,
		InterruptReason:  m.InterruptReason,
		Attribution:      m.Attribution,
		TimeToFirstByte:  m.TimeToFirstByte,
		TotalDuration:    m.TotalDuration,
		FragmentCount:    m.FragmentCount,
	}
	if len(m.Citations) > 0 {
		s.Citations = append([]Citation(nil), m.Citations...)
	}
	return s
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	content := m.DisplayContent()
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0 && m.streamContent.Len() == 0
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// newThreadID creates a unique attempt-thread identifier.
func newThreadID() string {
	return "thr_" + uuid.NewString()
}
