package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	model "github.com/liangxiao/meya/backend/internal/model/chat"
)

func newTestService() *Service {
	return NewService(Config{IdleTTL: 30 * time.Minute, SweepInterval: time.Minute})
}

func TestCreateAndGetSession(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, model.Request{Message: "query trains from A to B on 2025-07-16"})
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if session.ID == "" {
		t.Fatal("expected non-empty session id")
	}

	got, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	if got.Request.Message != "query trains from A to B on 2025-07-16" {
		t.Fatalf("unexpected payload: %q", got.Request.Message)
	}

	if svc.IsConnectionActive(session.ID) {
		t.Fatal("fresh session must not be marked active")
	}
}

func TestCreateSessionRequiresMessage(t *testing.T) {
	svc := newTestService()

	if _, err := svc.CreateSession(context.Background(), model.Request{Message: "  "}); !errors.Is(err, ErrMessageRequired) {
		t.Fatalf("expected ErrMessageRequired, got %v", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	svc := newTestService()

	if _, err := svc.GetSession(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestUpdateSessionReplacesPayload(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, model.Request{Message: "first"})
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	if err := svc.UpdateSession(ctx, session.ID, model.Request{Message: "second"}); err != nil {
		t.Fatalf("UpdateSession err: %v", err)
	}

	got, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	if got.Request.Message != "second" {
		t.Fatalf("payload not replaced: %q", got.Request.Message)
	}
}

func TestUpdateSessionNeverCreates(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if err := svc.UpdateSession(ctx, "missing", model.Request{Message: "hello"}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.GetSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatal("update must not implicitly create a session")
	}
}

func TestCloseSessionIdempotent(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, model.Request{Message: "hello"})
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	svc.CloseSession(ctx, session.ID)
	svc.CloseSession(ctx, session.ID)
	svc.CloseSession(ctx, "never-created")

	if _, err := svc.GetSession(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after close, got %v", err)
	}
	if _, err := svc.LoadTranscript(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatal("transcript must be removed with the session")
	}
}

func TestConnectionFlags(t *testing.T) {
	svc := newTestService()

	if svc.IsConnectionActive("unknown") {
		t.Fatal("unknown id must report inactive")
	}

	// Marking an id with no prior flag entry must lazily initialize it.
	svc.MarkConnectionActive("abc")
	if !svc.IsConnectionActive("abc") {
		t.Fatal("expected active after MarkConnectionActive")
	}

	svc.MarkConnectionInactive("abc")
	if svc.IsConnectionActive("abc") {
		t.Fatal("expected inactive after MarkConnectionInactive")
	}

	svc.MarkConnectionInactive("never-marked")
}

func TestTranscriptRoundTrip(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if err := svc.SaveMessage(ctx, model.Message{SessionID: "missing", Sender: "user", Content: "hi"}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	session, err := svc.CreateSession(ctx, model.Request{Message: "hello"})
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	if err := svc.SaveMessage(ctx, model.Message{SessionID: session.ID, Sender: "user", Content: "hi"}); err != nil {
		t.Fatalf("SaveMessage err: %v", err)
	}
	if err := svc.SaveMessage(ctx, model.Message{SessionID: session.ID, Sender: "assistant", Content: "hello there"}); err != nil {
		t.Fatalf("SaveMessage err: %v", err)
	}

	transcript, err := svc.LoadTranscript(ctx, session.ID)
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(transcript) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(transcript))
	}
	if transcript[0].Sender != "user" || transcript[1].Sender != "assistant" {
		t.Fatal("transcript order not preserved")
	}

	// The returned slice is a copy; mutating it must not leak into the store.
	transcript[0].Content = "mutated"
	reloaded, err := svc.LoadTranscript(ctx, session.ID)
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if reloaded[0].Content != "hi" {
		t.Fatal("LoadTranscript must return a defensive copy")
	}
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	svc := NewService(Config{IdleTTL: time.Minute, SweepInterval: time.Minute})
	ctx := context.Background()

	idle, err := svc.CreateSession(ctx, model.Request{Message: "idle"})
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	streaming, err := svc.CreateSession(ctx, model.Request{Message: "busy"})
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	svc.MarkConnectionActive(streaming.ID)

	if n := svc.sweep(time.Now().Add(time.Hour)); n != 1 {
		t.Fatalf("expected 1 swept session, got %d", n)
	}

	if _, err := svc.GetSession(ctx, idle.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatal("idle session should have been swept")
	}
	if _, err := svc.GetSession(ctx, streaming.ID); err != nil {
		t.Fatalf("actively streaming session must survive the sweep: %v", err)
	}
}

func TestSweepSkipsFreshSessions(t *testing.T) {
	svc := NewService(Config{IdleTTL: time.Hour, SweepInterval: time.Minute})
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, model.Request{Message: "fresh"})
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	if n := svc.sweep(time.Now()); n != 0 {
		t.Fatalf("expected no swept sessions, got %d", n)
	}
	if _, err := svc.GetSession(ctx, session.ID); err != nil {
		t.Fatalf("fresh session must survive: %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := svc.CreateSession(ctx, model.Request{Message: "hello"})
			if err != nil {
				t.Errorf("CreateSession err: %v", err)
				return
			}
			if _, err := svc.GetSession(ctx, session.ID); err != nil {
				t.Errorf("GetSession err: %v", err)
			}
			svc.MarkConnectionActive(session.ID)
			if err := svc.UpdateSession(ctx, session.ID, model.Request{Message: "updated"}); err != nil {
				t.Errorf("UpdateSession err: %v", err)
			}
			svc.MarkConnectionInactive(session.ID)
			svc.CloseSession(ctx, session.ID)
		}()
	}
	wg.Wait()
}
