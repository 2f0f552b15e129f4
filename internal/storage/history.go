// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/braid-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrNotFound      = errors.New("not found")
	ErrDatabaseError = errors.New("database error")
)

// =============================================================================
// HISTORY
// =============================================================================

// History is the local conversation store. SQLite only supports one writer
// at a time, so the connection pool is pinned to a single connection.
type History struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &History{db: db}, nil
}

// Close closes the database.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

// =============================================================================
// WRITES
// =============================================================================

// SaveConversation upserts the conversation row. Messages are saved
// individually as they finalize.
func (h *History) SaveConversation(conv *model.Conversation) error {
	if conv == nil || conv.ID == "" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.db.Exec(`
		INSERT INTO conversations (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		conv.ID, conv.Title, conv.CreatedAt.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// SaveMessage upserts one message row. Provisionally-identified messages are
// skipped: only durable ids reach disk, so a restart never resurrects an
// unreconciled placeholder.
func (h *History) SaveMessage(conversationID string, msg *model.Message) error {
	if msg == nil || model.IsProvisionalID(msg.CurrentID()) {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	citations, err := encodeCitations(msg.Citations)
	if err != nil {
		return err
	}
	attribution, err := encodeAttribution(msg.Attribution)
	if err != nil {
		return err
	}

	_, err = h.db.Exec(`
		INSERT INTO messages (id, conversation_id, role, content, position,
			thread_id, previous_thread_id, attempt_number, active_thread,
			interrupted, interrupt_reason, citations, attribution, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			active_thread = excluded.active_thread,
			interrupted = excluded.interrupted,
			interrupt_reason = excluded.interrupt_reason,
			citations = excluded.citations,
			attribution = excluded.attribution`,
		msg.CurrentID(), conversationID, string(msg.Role), msg.Content, msg.Position,
		msg.ThreadID, msg.PreviousThreadID, msg.AttemptNumber, boolToInt(msg.ActiveThread),
		boolToInt(msg.Interrupted), msg.InterruptReason, citations, attribution,
		msg.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// SetActiveAttempt flips the stored active flag for a position: exactly one
// attempt per position ends up active.
func (h *History) SetActiveAttempt(conversationID string, position, attemptNumber int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE messages SET active_thread = 0 WHERE conversation_id = ? AND position = ?`,
		conversationID, position); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	res, err := tx.Exec(
		`UPDATE messages SET active_thread = 1 WHERE conversation_id = ? AND position = ? AND attempt_number = ?`,
		conversationID, position, attemptNumber)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: attempt %d at position %d", ErrNotFound, attemptNumber, position)
	}
	return tx.Commit()
}

// DeleteMessages removes message rows by id.
func (h *History) DeleteMessages(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := h.db.Exec(`DELETE FROM messages WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// DeleteConversation removes a conversation and, through the foreign key
// cascade, all of its messages.
func (h *History) DeleteConversation(conversationID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.db.Exec(`DELETE FROM conversations WHERE id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	ID        string
	Title     string
	UpdatedAt time.Time
}

// ListConversations returns conversations ordered most recent first.
func (h *History) ListConversations(limit int) ([]ConversationSummary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.Query(
		`SELECT id, title, updated_at FROM conversations ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		var updated int64
		if err := rows.Scan(&s.ID, &s.Title, &updated); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		s.UpdatedAt = time.Unix(updated, 0)
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadConversation loads a conversation with every stored attempt, ordered
// by position then attempt number.
func (h *History) LoadConversation(conversationID string) (*model.Conversation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conv := model.NewConversation()
	var created int64
	err := h.db.QueryRow(
		`SELECT id, title, created_at FROM conversations WHERE id = ?`, conversationID).
		Scan(&conv.ID, &conv.Title, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	conv.CreatedAt = time.Unix(created, 0)

	rows, err := h.db.Query(`
		SELECT id, role, content, position, thread_id, previous_thread_id,
			attempt_number, active_thread, interrupted, interrupt_reason,
			citations, attribution, created_at
		FROM messages WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Position != msgs[j].Position {
			return msgs[i].Position < msgs[j].Position
		}
		return msgs[i].AttemptNumber < msgs[j].AttemptNumber
	})
	for _, msg := range msgs {
		conv.AddMessage(msg)
	}
	return conv, nil
}

// scanMessage builds a Message from one row.
func scanMessage(rows *sql.Rows) (*model.Message, error) {
	var (
		id, role, content, threadID string
		prevThread, reason          sql.NullString
		citations, attribution      sql.NullString
		position, attempt           int
		active, interrupted         int
		created                     int64
	)
	if err := rows.Scan(&id, &role, &content, &position, &threadID, &prevThread,
		&attempt, &active, &interrupted, &reason, &citations, &attribution, &created); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	msg := model.NewMessage(model.Role(role), content)
	msg.ID = model.NewDurableIDCell(id)
	msg.Timestamp = time.Unix(created, 0)
	msg.Position = position
	msg.ThreadID = threadID
	msg.PreviousThreadID = prevThread.String
	msg.AttemptNumber = attempt
	msg.ActiveThread = active != 0
	msg.Interrupted = interrupted != 0
	msg.InterruptReason = reason.String

	if citations.Valid && citations.String != "" {
		if err := json.Unmarshal([]byte(citations.String), &msg.Citations); err != nil {
			return nil, fmt.Errorf("%w: citations for %s: %v", ErrDatabaseError, id, err)
		}
	}
	if attribution.Valid && attribution.String != "" {
		if err := json.Unmarshal([]byte(attribution.String), &msg.Attribution); err != nil {
			return nil, fmt.Errorf("%w: attribution for %s: %v", ErrDatabaseError, id, err)
		}
	}
	return msg, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func encodeCitations(citations []model.Citation) (string, error) {
	if len(citations) == 0 {
		return "", nil
	}
	b, err := json.Marshal(citations)
	if err != nil {
		return "", fmt.Errorf("failed to encode citations: %w", err)
	}
	return string(b), nil
}

func encodeAttribution(attr model.Attribution) (string, error) {
	if attr == (model.Attribution{}) {
		return "", nil
	}
	b, err := json.Marshal(attr)
	if err != nil {
		return "", fmt.Errorf("failed to encode attribution: %w", err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
