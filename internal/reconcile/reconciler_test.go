// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"errors"
	"testing"

	"github.com/jeranaias/braid-tui/internal/model"
)

// =============================================================================
// RECONCILE TESTS
// =============================================================================

func TestReconciler_PromotesPrimaryAndDependents(t *testing.T) {
	r := New()
	msg := model.NewUserMessage("hello")
	provisional := msg.CurrentID()

	var rekeyed [][2]string
	r.Track(msg.ID)
	r.Attach(provisional, RekeyFunc(func(p, d string) {
		rekeyed = append(rekeyed, [2]string{p, d})
	}))
	r.Attach(provisional, RekeyFunc(func(p, d string) {
		rekeyed = append(rekeyed, [2]string{p, d})
	}))

	if err := r.Reconcile(provisional, "msg_9"); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if msg.CurrentID() != "msg_9" {
		t.Errorf("CurrentID() = %q after reconcile, want %q", msg.CurrentID(), "msg_9")
	}
	if !msg.ID.Durable() {
		t.Error("id cell should be durable after reconcile")
	}
	if len(rekeyed) != 2 {
		t.Fatalf("got %d dependent rekeys, want 2", len(rekeyed))
	}
	for _, pair := range rekeyed {
		if pair[0] != provisional || pair[1] != "msg_9" {
			t.Errorf("dependent rekeyed with (%q, %q), want (%q, %q)",
				pair[0], pair[1], provisional, "msg_9")
		}
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d after reconcile, want 0", r.Pending())
	}
}

func TestReconciler_RepeatSamePairIsNoop(t *testing.T) {
	r := New()
	msg := model.NewUserMessage("hello")
	provisional := msg.CurrentID()
	r.Track(msg.ID)

	calls := 0
	r.Attach(provisional, RekeyFunc(func(p, d string) { calls++ }))

	if err := r.Reconcile(provisional, "msg_9"); err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}
	if err := r.Reconcile(provisional, "msg_9"); err != nil {
		t.Fatalf("repeat Reconcile() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("dependent rekeyed %d times, want exactly once", calls)
	}
}

func TestReconciler_ConflictingDurableIDIgnored(t *testing.T) {
	r := New()
	msg := model.NewUserMessage("hello")
	provisional := msg.CurrentID()
	r.Track(msg.ID)

	if err := r.Reconcile(provisional, "msg_9"); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	// A conflicting second mapping is logged and dropped, never applied
	if err := r.Reconcile(provisional, "msg_10"); err != nil {
		t.Fatalf("conflicting Reconcile() error = %v, want nil (ignored)", err)
	}
	if msg.CurrentID() != "msg_9" {
		t.Errorf("CurrentID() = %q, conflicting id must not win", msg.CurrentID())
	}
}

func TestReconciler_UntrackedReturnsReferenceNotFound(t *testing.T) {
	r := New()
	err := r.Reconcile("tmp_ghost", "msg_9")
	if !errors.Is(err, ErrReferenceNotFound) {
		t.Errorf("Reconcile() error = %v, want ErrReferenceNotFound", err)
	}
}

func TestReconciler_AttachWithoutTrackIsNotPrimary(t *testing.T) {
	r := New()
	called := false
	r.Attach("tmp_x", RekeyFunc(func(p, d string) { called = true }))

	// A dependent without its primary cell cannot reconcile
	err := r.Reconcile("tmp_x", "msg_9")
	if !errors.Is(err, ErrReferenceNotFound) {
		t.Errorf("Reconcile() error = %v, want ErrReferenceNotFound", err)
	}
	if called {
		t.Error("dependent must not be rekeyed when the primary is missing")
	}
}

func TestReconciler_TrackDurableCellIsNoop(t *testing.T) {
	r := New()
	r.Track(model.NewDurableIDCell("msg_5"))
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d after tracking durable cell, want 0", r.Pending())
	}
}

func TestReconciler_Forget(t *testing.T) {
	r := New()
	msg := model.NewUserMessage("discarded")
	provisional := msg.CurrentID()
	r.Track(msg.ID)
	r.Forget(provisional)

	if r.Pending() != 0 {
		t.Errorf("Pending() = %d after Forget, want 0", r.Pending())
	}
	if err := r.Reconcile(provisional, "msg_9"); !errors.Is(err, ErrReferenceNotFound) {
		t.Errorf("Reconcile() after Forget = %v, want ErrReferenceNotFound", err)
	}
}
