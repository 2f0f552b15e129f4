// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"encoding/json"

	"github.com/jeranaias/braid-tui/internal/model"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// RequestDescriptor is the opaque, replayable payload produced by an intent
// call (or built locally for a fresh send). The orchestrator forwards it to
// the completion endpoints unchanged.
type RequestDescriptor struct {
	Payload json.RawMessage `json:"payload"`
}

// SendRequest builds the descriptor for a fresh user message.
func SendRequest(conversationID, content string) RequestDescriptor {
	body, _ := json.Marshal(struct {
		ConversationID string `json:"conversation_id,omitempty"`
		Content        string `json:"content"`
	}{conversationID, content})
	return RequestDescriptor{Payload: body}
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// CompletionResult is the finalized outcome of a completion, shared by the
// non-streaming response and the stream's done unit.
type CompletionResult struct {
	FinalMessageID     string            `json:"final_message_id"`
	FinalUserMessageID string            `json:"final_user_message_id"`
	Content            string            `json:"content,omitempty"`
	Citations          []model.Citation  `json:"citations,omitempty"`
	Attribution        model.Attribution `json:"attribution,omitempty"`
	ConversationID     string            `json:"conversation_id"`
	ConversationTitle  string            `json:"conversation_title,omitempty"`
}

// UnitError is the body of a server-reported error unit.
type UnitError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// StreamUnit is one inbound unit of the completion stream. Exactly one of
// the three shapes is populated: a content fragment, a server-reported error
// (optionally carrying partial content), or the terminal done unit carrying
// the completion result.
type StreamUnit struct {
	Content string `json:"content,omitempty"`

	Error          *UnitError `json:"error,omitempty"`
	PartialContent string     `json:"partial_content,omitempty"`

	Done bool `json:"done,omitempty"`
	// The embedded result's content tag is shadowed by the outer Content
	// field above, so a done unit's content always decodes there. Readers
	// take the result through Result, which carries it across.
	CompletionResult
}

// Result returns the done unit's completion result with the content field
// populated from the outer Content, where the decoder put it.
func (u *StreamUnit) Result() CompletionResult {
	result := u.CompletionResult
	if result.Content == "" {
		result.Content = u.Content
	}
	return result
}

// IsFragment reports whether the unit carries a content fragment.
func (u *StreamUnit) IsFragment() bool {
	return u.Error == nil && !u.Done
}

// SwitchResult is the backend's confirmation of an attempt switch.
type SwitchResult struct {
	NewActiveAttemptNumber int `json:"new_active_attempt_number"`
}

// DeleteResult lists every message removed by a delete call.
type DeleteResult struct {
	DeletedIDs []string `json:"deleted_ids"`
}
