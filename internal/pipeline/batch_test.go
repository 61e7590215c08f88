package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/adaptive-form/internal/admission"
	"github.com/danielpatrickdp/adaptive-form/internal/behavior"
	"github.com/danielpatrickdp/adaptive-form/internal/session"
)

func TestDecideBatch_AlignedAndSerializedPerSession(t *testing.T) {
	clock := newClock()
	o := New(testConfig(), Deps{Clock: clock.Now})
	events := typingSession(20, 6, behavior.DeviceDesktop)

	reqs := []Request{
		{SessionID: "a", FormID: "f", Events: events},
		{SessionID: "b", FormID: "f", Events: events},
		{SessionID: "a", FormID: "f", Events: events},
		{SessionID: "c", FormID: "f"},
	}
	results := o.DecideBatch(context.Background(), reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("request %d: %v", i, r.Err)
		}
		if r.Decision.SessionID != reqs[i].SessionID {
			t.Errorf("result %d belongs to %s, want %s", i, r.Decision.SessionID, reqs[i].SessionID)
		}
	}

	// same session, same clock: the later request lands in the cooldown
	if len(results[0].Decision.Candidates) == 0 {
		t.Error("first request for a should admit")
	}
	if results[2].Decision.Admission != admission.OutcomeCooldown {
		t.Errorf("second request for a should be in cooldown, got %s", results[2].Decision.Admission)
	}
}

func TestDecideBatch_PerRequestErrors(t *testing.T) {
	o := New(testConfig(), Deps{Store: brokenStore{}})
	results := o.DecideBatch(context.Background(), []Request{{SessionID: "a"}, {SessionID: "b"}})
	for i, r := range results {
		if !errors.Is(r.Err, ErrSessionStateUnavailable) {
			t.Errorf("result %d: expected state error, got %v", i, r.Err)
		}
	}
}

func TestDecideBatch_Empty(t *testing.T) {
	o := New(testConfig(), Deps{})
	if got := o.DecideBatch(context.Background(), nil); len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

func TestDecideBatch_SQLiteStoreParallelSessions(t *testing.T) {
	store, err := session.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	cfg := DefaultConfig()
	cfg.BatchParallelism = 16
	clock := newClock()
	o := New(cfg, Deps{Store: store, Clock: clock.Now})

	events := typingSession(20, 6, behavior.DeviceDesktop)
	issued := map[string]int{}
	for round := 0; round < 5; round++ {
		reqs := make([]Request, 50)
		for i := range reqs {
			reqs[i] = Request{SessionID: fmt.Sprintf("s%d", i), FormID: "f", Events: events, Context: desktopHigh}
		}
		for i, r := range o.DecideBatch(context.Background(), reqs) {
			if r.Err != nil {
				t.Fatalf("round %d request %d: %v", round, i, r.Err)
			}
			issued[r.Decision.SessionID] += len(r.Decision.Candidates)
		}
		clock.Advance(time.Minute)
	}

	for id, want := range issued {
		st, err := store.Load(context.Background(), id)
		if err != nil {
			t.Fatalf("Load %s: %v", id, err)
		}
		if st.IssuedCount != want {
			t.Errorf("%s: stored issued count %d, want %d", id, st.IssuedCount, want)
		}
	}
}
