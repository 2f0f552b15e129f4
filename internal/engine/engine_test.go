// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jeranaias/braid-tui/internal/backend"
	"github.com/jeranaias/braid-tui/internal/model"
	"github.com/jeranaias/braid-tui/internal/thread"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// recordingNotifier captures every notification for assertions.
type recordingNotifier struct {
	mu        sync.Mutex
	created   []*model.Message
	finalized []*model.Message
	updates   []string
	deleted   [][]string
	failures  []FailureKind
}

func (n *recordingNotifier) MessageCreated(msg *model.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, msg)
}

func (n *recordingNotifier) MessageFinalized(msg *model.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finalized = append(n.finalized, msg)
}

func (n *recordingNotifier) MessageUpdated(id, content string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, content)
}

func (n *recordingNotifier) AttemptBoundsChanged(thread.Position, int, int) {}

func (n *recordingNotifier) MessagesDeleted(ids []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, ids)
}

func (n *recordingNotifier) OperationFailed(kind FailureKind, detail string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, kind)
}

func (n *recordingNotifier) failureKinds() []FailureKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]FailureKind(nil), n.failures...)
}

// newTestEngine wires an engine against a test handler.
func newTestEngine(t *testing.T, handler http.Handler, opts Options) (*Engine, *recordingNotifier, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	client := backend.NewClient(server.URL, "")
	notifier := &recordingNotifier{}
	eng := New(client, nil, notifier, opts)
	return eng, notifier, func() {
		eng.Close()
		server.Close()
	}
}

// writeNDJSON writes stream units followed by a done unit carrying result.
func writeNDJSON(w http.ResponseWriter, fragments []string, result backend.CompletionResult) {
	for _, f := range fragments {
		json.NewEncoder(w).Encode(backend.StreamUnit{Content: f})
	}
	unit := backend.StreamUnit{Done: true}
	unit.CompletionResult = result
	json.NewEncoder(w).Encode(unit)
}

// =============================================================================
// FRESH SEND TESTS
// =============================================================================

func TestEngine_SendUserMessage_Streamed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions/stream", func(w http.ResponseWriter, r *http.Request) {
		writeNDJSON(w, []string{"Hello", ", world"}, backend.CompletionResult{
			FinalMessageID:     "msg_2",
			FinalUserMessageID: "msg_1",
			ConversationID:     "conv_1",
			ConversationTitle:  "Greeting",
		})
	})

	eng, notifier, cleanup := newTestEngine(t, mux, DefaultOptions())
	defer cleanup()

	if err := eng.SendUserMessage(context.Background(), "hi there"); err != nil {
		t.Fatalf("SendUserMessage() error = %v", err)
	}

	conv := eng.Conversation()
	if conv.MessageCount() != 2 {
		t.Fatalf("MessageCount() = %d, want user + assistant", conv.MessageCount())
	}

	user := conv.MessageByID("msg_1")
	if user == nil || user.Role != model.RoleUser {
		t.Fatal("user message should resolve by its durable id after reconciliation")
	}
	asst := conv.MessageByID("msg_2")
	if asst == nil || asst.Role != model.RoleAssistant {
		t.Fatal("assistant message should resolve by its durable id after reconciliation")
	}
	if asst.Content != "Hello, world" {
		t.Errorf("assistant content = %q, want exact fragment concatenation", asst.Content)
	}
	if asst.IsStreaming {
		t.Error("assistant should be finalized")
	}
	if conv.ID != "conv_1" || conv.Title != "Greeting" {
		t.Errorf("conversation identity = (%q, %q), want server-assigned", conv.ID, conv.Title)
	}

	// Both positions must be recorded as attempt 1
	if eng.Threads().AttemptCount(thread.Position(user.Position)) != 1 {
		t.Error("user position should have one recorded attempt")
	}
	if eng.Threads().AttemptCount(thread.Position(asst.Position)) != 1 {
		t.Error("assistant position should have one recorded attempt")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.created) != 2 {
		t.Errorf("created notifications = %d, want 2 (optimistic render)", len(notifier.created))
	}
	if len(notifier.finalized) != 2 {
		t.Errorf("finalized notifications = %d, want 2", len(notifier.finalized))
	}
}

func TestEngine_FallbackToNonStreamingOnOpenFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions/stream", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": {"message": "streaming disabled"}}`))
	})
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(backend.CompletionResult{
			FinalMessageID:     "msg_2",
			FinalUserMessageID: "msg_1",
			Content:            "complete answer",
			ConversationID:     "conv_1",
		})
	})

	eng, _, cleanup := newTestEngine(t, mux, DefaultOptions())
	defer cleanup()

	if err := eng.SendUserMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendUserMessage() error = %v, want silent fallback", err)
	}

	asst := eng.Conversation().MessageByID("msg_2")
	if asst == nil || asst.Content != "complete answer" {
		t.Fatal("fallback completion should land the full response")
	}
}

func TestEngine_NonStreamingMode(t *testing.T) {
	streamCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions/stream", func(w http.ResponseWriter, r *http.Request) {
		streamCalls++
	})
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(backend.CompletionResult{
			FinalMessageID:     "msg_2",
			FinalUserMessageID: "msg_1",
			Content:            "whole thing",
		})
	})

	opts := DefaultOptions()
	opts.AudioMode = true
	eng, _, cleanup := newTestEngine(t, mux, opts)
	defer cleanup()

	if err := eng.SendUserMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendUserMessage() error = %v", err)
	}
	if streamCalls != 0 {
		t.Error("audio mode must never touch the stream endpoint")
	}
}

// =============================================================================
// INTERRUPTION TESTS
// =============================================================================

func TestEngine_InterruptedStreamKeepsPartial(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions/stream", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(backend.StreamUnit{Content: "partial thoughts"})
		json.NewEncoder(w).Encode(backend.StreamUnit{
			Error: &backend.UnitError{Code: "overloaded", Message: "capacity"},
		})
	})

	eng, notifier, cleanup := newTestEngine(t, mux, DefaultOptions())
	defer cleanup()

	if err := eng.SendUserMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendUserMessage() error = %v", err)
	}

	conv := eng.Conversation()
	var asst *model.Message
	for _, msg := range conv.Messages {
		if msg.Role == model.RoleAssistant {
			asst = msg
		}
	}
	if asst == nil {
		t.Fatal("interrupted assistant message should remain in the conversation")
	}
	if asst.Content != "partial thoughts" {
		t.Errorf("Content = %q, partial content must be preserved", asst.Content)
	}
	if !asst.Interrupted {
		t.Error("message should be marked interrupted")
	}
	if !model.IsProvisionalID(asst.CurrentID()) {
		t.Error("interrupted message keeps its provisional id: no durable id ever arrived")
	}

	kinds := notifier.failureKinds()
	if len(kinds) != 1 || kinds[0] != ServerReportedError {
		t.Errorf("failure kinds = %v, want one ServerReportedError", kinds)
	}
}

func TestEngine_NoContentFailureReplacesPlaceholder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"code": "safety_rejection", "message": "cannot help with that"}}`))
	})

	opts := DefaultOptions()
	opts.Streaming = false
	eng, _, cleanup := newTestEngine(t, mux, opts)
	defer cleanup()

	err := eng.SendUserMessage(context.Background(), "bad request")
	if err == nil {
		t.Fatal("SendUserMessage() error = nil, want classified failure")
	}
	if KindOf(err) != ServerReportedError {
		t.Errorf("KindOf() = %v, want ServerReportedError", KindOf(err))
	}

	conv := eng.Conversation()
	var roles []model.Role
	for _, msg := range conv.Messages {
		roles = append(roles, msg.Role)
	}
	// User input survives; the empty placeholder became a safety message
	if len(roles) != 2 || roles[0] != model.RoleUser || roles[1] != model.RoleSafety {
		t.Errorf("roles = %v, want [user safety]", roles)
	}
}

// =============================================================================
// RETRY AND EDIT TESTS
// =============================================================================

// seedExchange drives one successful send so retry/edit have a target.
func seedExchange(t *testing.T, eng *Engine) (user, asst *model.Message) {
	t.Helper()
	if err := eng.SendUserMessage(context.Background(), "first question"); err != nil {
		t.Fatalf("seed send error = %v", err)
	}
	conv := eng.Conversation()
	for _, msg := range conv.ActiveMessages() {
		switch msg.Role {
		case model.RoleUser:
			user = msg
		case model.RoleAssistant:
			asst = msg
		}
	}
	if user == nil || asst == nil {
		t.Fatal("seed exchange incomplete")
	}
	return user, asst
}

func TestEngine_RetryRecordsNewAttempt(t *testing.T) {
	responses := []string{"first answer", "second answer"}
	finalIDs := []string{"msg_2", "msg_4"}
	call := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions/stream", func(w http.ResponseWriter, r *http.Request) {
		writeNDJSON(w, []string{responses[call]}, backend.CompletionResult{
			FinalMessageID:     finalIDs[call],
			FinalUserMessageID: "msg_1",
			ConversationID:     "conv_1",
		})
		call++
	})
	mux.HandleFunc("/v1/messages/msg_2/retry-intent", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(backend.RequestDescriptor{Payload: json.RawMessage(`{"op":"retry"}`)})
	})

	eng, _, cleanup := newTestEngine(t, mux, DefaultOptions())
	defer cleanup()

	_, asst := seedExchange(t, eng)
	position := thread.Position(asst.Position)

	if err := eng.RetryMessage(context.Background(), asst.CurrentID(), backend.RetryOverrides{}); err != nil {
		t.Fatalf("RetryMessage() error = %v", err)
	}

	if eng.Threads().AttemptCount(position) != 2 {
		t.Fatalf("AttemptCount() = %d after retry, want 2", eng.Threads().AttemptCount(position))
	}
	active := eng.Threads().ActiveAttempt(position)
	if active.Content != "second answer" {
		t.Errorf("active attempt content = %q, want the retry result", active.Content)
	}
	if active.AttemptNumber != 2 {
		t.Errorf("AttemptNumber = %d, want 2", active.AttemptNumber)
	}
	if asst.ActiveThread {
		t.Error("superseded attempt should be inactive")
	}
	if active.PreviousThreadID != asst.ThreadID {
		t.Error("retry attempt should link to the superseded attempt's thread")
	}
	// The original user message is untouched by a retry
	if eng.Conversation().MessageByID("msg_1") == nil {
		t.Error("user message must survive a retry unchanged")
	}
}

func TestEngine_EditIntentRejectionChangesNothing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions/stream", func(w http.ResponseWriter, r *http.Request) {
		writeNDJSON(w, []string{"answer"}, backend.CompletionResult{
			FinalMessageID:     "msg_2",
			FinalUserMessageID: "msg_1",
			ConversationID:     "conv_1",
		})
	})
	mux.HandleFunc("/v1/messages/msg_1/edit-intent", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error": {"code": "stale_edit", "message": "superseded"}}`))
	})

	eng, notifier, cleanup := newTestEngine(t, mux, DefaultOptions())
	defer cleanup()

	user, _ := seedExchange(t, eng)
	countBefore := eng.Conversation().MessageCount()

	err := eng.EditMessage(context.Background(), user.CurrentID(), "revised question")
	if err == nil {
		t.Fatal("EditMessage() error = nil, want intent rejection")
	}
	if KindOf(err) != IntentRejected {
		t.Errorf("KindOf() = %v, want IntentRejected", KindOf(err))
	}

	if eng.Conversation().MessageCount() != countBefore {
		t.Error("rejected intent must leave the conversation untouched")
	}
	if user.Content != "first question" {
		t.Errorf("user content = %q, original must stand", user.Content)
	}

	kinds := notifier.failureKinds()
	if len(kinds) != 1 || kinds[0] != IntentRejected {
		t.Errorf("failure kinds = %v, want one IntentRejected", kinds)
	}
}

func TestEngine_EditReplacesBothSides(t *testing.T) {
	call := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions/stream", func(w http.ResponseWriter, r *http.Request) {
		call++
		if call == 1 {
			writeNDJSON(w, []string{"first answer"}, backend.CompletionResult{
				FinalMessageID:     "msg_2",
				FinalUserMessageID: "msg_1",
				ConversationID:     "conv_1",
			})
			return
		}
		writeNDJSON(w, []string{"revised answer"}, backend.CompletionResult{
			FinalMessageID:     "msg_4",
			FinalUserMessageID: "msg_3",
			ConversationID:     "conv_1",
		})
	})
	mux.HandleFunc("/v1/messages/msg_1/edit-intent", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(backend.RequestDescriptor{Payload: json.RawMessage(`{"op":"edit"}`)})
	})

	eng, _, cleanup := newTestEngine(t, mux, DefaultOptions())
	defer cleanup()

	user, asst := seedExchange(t, eng)

	if err := eng.EditMessage(context.Background(), user.CurrentID(), "revised question"); err != nil {
		t.Fatalf("EditMessage() error = %v", err)
	}

	userPos := thread.Position(user.Position)
	asstPos := thread.Position(asst.Position)
	if eng.Threads().AttemptCount(userPos) != 2 {
		t.Errorf("user position attempts = %d, want 2", eng.Threads().AttemptCount(userPos))
	}
	if eng.Threads().AttemptCount(asstPos) != 2 {
		t.Errorf("assistant position attempts = %d, want 2", eng.Threads().AttemptCount(asstPos))
	}

	newUser := eng.Threads().ActiveAttempt(userPos)
	if newUser.Content != "revised question" || newUser.CurrentID() != "msg_3" {
		t.Errorf("active user attempt = (%q, %q), want the reconciled edit", newUser.Content, newUser.CurrentID())
	}
	if user.ActiveThread {
		t.Error("original user attempt should be superseded")
	}
}

// =============================================================================
// NAVIGATION AND DELETE TESTS
// =============================================================================

func TestEngine_NavigateAttempt(t *testing.T) {
	call := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions/stream", func(w http.ResponseWriter, r *http.Request) {
		call++
		id := []string{"msg_2", "msg_4"}[call-1]
		writeNDJSON(w, []string{"answer"}, backend.CompletionResult{
			FinalMessageID:     id,
			FinalUserMessageID: "msg_1",
			ConversationID:     "conv_1",
		})
	})
	mux.HandleFunc("/v1/messages/msg_2/retry-intent", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(backend.RequestDescriptor{Payload: json.RawMessage(`{}`)})
	})
	mux.HandleFunc("/v1/messages/msg_4/active-attempt", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(backend.SwitchResult{NewActiveAttemptNumber: 1})
	})

	eng, _, cleanup := newTestEngine(t, mux, DefaultOptions())
	defer cleanup()

	_, asst := seedExchange(t, eng)
	position := thread.Position(asst.Position)
	if err := eng.RetryMessage(context.Background(), asst.CurrentID(), backend.RetryOverrides{}); err != nil {
		t.Fatalf("RetryMessage() error = %v", err)
	}

	if err := eng.NavigateAttempt(context.Background(), position, thread.Previous); err != nil {
		t.Fatalf("NavigateAttempt() error = %v", err)
	}
	if got := eng.Threads().ActiveAttempt(position); got.AttemptNumber != 1 {
		t.Errorf("active attempt = %d after navigation, want 1", got.AttemptNumber)
	}

	// Walking past the first attempt is a quiet no-op signal
	err := eng.NavigateAttempt(context.Background(), position, thread.Previous)
	if !errors.Is(err, thread.ErrNoFurtherAttempts) {
		t.Errorf("NavigateAttempt() past boundary = %v, want ErrNoFurtherAttempts", err)
	}
}

func TestEngine_DeleteMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions/stream", func(w http.ResponseWriter, r *http.Request) {
		writeNDJSON(w, []string{"answer"}, backend.CompletionResult{
			FinalMessageID:     "msg_2",
			FinalUserMessageID: "msg_1",
			ConversationID:     "conv_1",
		})
	})
	mux.HandleFunc("/v1/messages/msg_2", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %q, want DELETE", r.Method)
		}
		json.NewEncoder(w).Encode(backend.DeleteResult{DeletedIDs: []string{"msg_2"}})
	})

	eng, notifier, cleanup := newTestEngine(t, mux, DefaultOptions())
	defer cleanup()

	_, asst := seedExchange(t, eng)
	if err := eng.DeleteMessage(context.Background(), asst.CurrentID(), false); err != nil {
		t.Fatalf("DeleteMessage() error = %v", err)
	}

	if eng.Conversation().MessageByID("msg_2") != nil {
		t.Error("deleted message should be gone from the conversation")
	}
	if eng.Conversation().MessageByID("msg_1") == nil {
		t.Error("non-deleted message must survive")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.deleted) != 1 {
		t.Errorf("deletion notifications = %d, want 1", len(notifier.deleted))
	}
}

// =============================================================================
// RESUME TESTS
// =============================================================================

// storedMessage builds a durable message the way local history reloads them.
func storedMessage(id string, role model.Role, content string, position, attempt int, active bool) *model.Message {
	msg := model.NewMessage(role, content)
	msg.ID = model.NewDurableIDCell(id)
	msg.Position = position
	msg.AttemptNumber = attempt
	msg.ActiveThread = active
	msg.ThreadID = "thr_" + id
	return msg
}

func TestEngine_ResumeConversation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions/stream", func(w http.ResponseWriter, r *http.Request) {
		writeNDJSON(w, []string{"next answer"}, backend.CompletionResult{
			FinalMessageID:     "msg_9",
			FinalUserMessageID: "msg_8",
			ConversationID:     "conv_1",
		})
	})

	eng, _, cleanup := newTestEngine(t, mux, DefaultOptions())
	defer cleanup()

	conv := model.NewConversation()
	conv.ID = "conv_1"
	conv.Title = "Resumed"
	for _, msg := range []*model.Message{
		storedMessage("msg_1", model.RoleUser, "question", 0, 1, true),
		storedMessage("msg_2", model.RoleAssistant, "first take", 1, 1, false),
		storedMessage("msg_3", model.RoleAssistant, "second take", 1, 2, true),
	} {
		conv.AddMessage(msg)
	}

	if err := eng.ResumeConversation(conv); err != nil {
		t.Fatalf("ResumeConversation() error = %v", err)
	}

	if eng.Conversation() != conv {
		t.Fatal("engine should drive the resumed conversation")
	}
	if eng.Threads().AttemptCount(1) != 2 {
		t.Errorf("AttemptCount(1) = %d, want both stored attempts", eng.Threads().AttemptCount(1))
	}
	if got := eng.Threads().ActiveAttempt(1); got == nil || got.CurrentID() != "msg_3" {
		t.Error("stored active attempt should survive the resume")
	}
	canPrev, canNext := eng.Threads().Bounds(1)
	if !canPrev || canNext {
		t.Errorf("Bounds(1) = (%v, %v), want backward navigation only", canPrev, canNext)
	}

	// New exchanges continue after the stored positions
	if err := eng.SendUserMessage(context.Background(), "follow-up"); err != nil {
		t.Fatalf("SendUserMessage() after resume error = %v", err)
	}
	followUp := eng.Conversation().MessageByID("msg_8")
	if followUp == nil || followUp.Position != 2 {
		t.Error("follow-up should land at the next free position")
	}
}

func TestEngine_ResumeRejectsInconsistentHistory(t *testing.T) {
	eng, _, cleanup := newTestEngine(t, http.NewServeMux(), DefaultOptions())
	defer cleanup()

	conv := model.NewConversation()
	conv.AddMessage(storedMessage("msg_1", model.RoleAssistant, "a", 0, 1, true))
	conv.AddMessage(storedMessage("msg_2", model.RoleAssistant, "b", 0, 2, true))

	err := eng.ResumeConversation(conv)
	if KindOf(err) != InvariantViolation {
		t.Errorf("KindOf() = %v, want InvariantViolation for a double-active chain", KindOf(err))
	}
}

// =============================================================================
// SNAPSHOT TESTS
// =============================================================================

// A rendering loop must be able to read conversation snapshots while the
// engine's goroutines append messages and fragments. Run under the race
// detector.
func TestEngine_SnapshotReadableDuringStream(t *testing.T) {
	const fragments = 200

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions/stream", func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		for i := 0; i < fragments; i++ {
			json.NewEncoder(w).Encode(backend.StreamUnit{Content: "x"})
			if flusher != nil {
				flusher.Flush()
			}
		}
		unit := backend.StreamUnit{Done: true}
		unit.CompletionResult = backend.CompletionResult{
			FinalMessageID:     "msg_2",
			FinalUserMessageID: "msg_1",
			ConversationID:     "conv_1",
		}
		json.NewEncoder(w).Encode(unit)
	})

	eng, _, cleanup := newTestEngine(t, mux, DefaultOptions())
	defer cleanup()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			snap := eng.Snapshot()
			for _, msg := range snap.Messages {
				_ = msg.CurrentID()
				_ = msg.DisplayContent()
			}
		}
	}()

	err := eng.SendUserMessage(context.Background(), "hi")
	close(done)
	wg.Wait()
	if err != nil {
		t.Fatalf("SendUserMessage() error = %v", err)
	}

	asst := eng.Conversation().MessageByID("msg_2")
	if asst == nil {
		t.Fatal("assistant should resolve by its durable id")
	}
	if asst.Content != strings.Repeat("x", fragments) {
		t.Errorf("assistant content length = %d, want %d", len(asst.Content), fragments)
	}
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestEngine_ClosedRejectsOperations(t *testing.T) {
	eng := New(backend.NewClient("http://localhost:0", ""), nil, nil, DefaultOptions())
	eng.Close()

	if err := eng.SendUserMessage(context.Background(), "hi"); !errors.Is(err, ErrClosed) {
		t.Errorf("SendUserMessage() after Close = %v, want ErrClosed", err)
	}
	if err := eng.RetryMessage(context.Background(), "msg_1", backend.RetryOverrides{}); !errors.Is(err, ErrClosed) {
		t.Errorf("RetryMessage() after Close = %v, want ErrClosed", err)
	}
}
