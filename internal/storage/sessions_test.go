package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCreateSession_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, "s1"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, ok, err := s.AppendMessage(ctx, "s1", RoleHuman, "hello"); err != nil || !ok {
		t.Fatalf("AppendMessage: ok=%v err=%v", ok, err)
	}
	if err := s.CreateSession(ctx, "s1"); err != nil {
		t.Fatalf("second CreateSession: %v", err)
	}

	msgs, err := s.GetMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Errorf("messages after re-create = %+v, want the original message", msgs)
	}
}

func TestGetMessages_UnknownSession(t *testing.T) {
	s := openTestStore(t)

	msgs, err := s.GetMessages(context.Background(), "never-created")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if msgs == nil {
		t.Error("expected empty non-nil slice")
	}
	if len(msgs) != 0 {
		t.Errorf("len = %d, want 0", len(msgs))
	}
}

func TestAppendMessage_Order(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, "s1"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	for i := range 5 {
		role := RoleHuman
		if i%2 == 1 {
			role = RoleAI
		}
		if _, ok, err := s.AppendMessage(ctx, "s1", role, fmt.Sprintf("m%d", i)); err != nil || !ok {
			t.Fatalf("AppendMessage %d: ok=%v err=%v", i, ok, err)
		}
	}

	msgs, err := s.GetMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("len = %d, want 5", len(msgs))
	}
	for i, m := range msgs {
		if want := fmt.Sprintf("m%d", i); m.Content != want {
			t.Errorf("msgs[%d].Content = %q, want %q", i, m.Content, want)
		}
		if i > 0 && m.Timestamp.Before(msgs[i-1].Timestamp) {
			t.Errorf("timestamp %d (%v) before %d (%v)", i, m.Timestamp, i-1, msgs[i-1].Timestamp)
		}
	}
}

func TestAppendMessage_MissingSessionIsNoop(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.AppendMessage(ctx, "ghost", RoleHuman, "hi")
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if ok {
		t.Error("expected ok=false for missing session")
	}

	exists, err := s.SessionExists(ctx, "ghost")
	if err != nil {
		t.Fatalf("SessionExists: %v", err)
	}
	if exists {
		t.Error("append must not create the session")
	}
	msgs, _ := s.GetMessages(ctx, "ghost")
	if len(msgs) != 0 {
		t.Errorf("len = %d, want 0", len(msgs))
	}
}

func TestAppendMessage_ClampsBackwardClock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, "s1"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	future := time.Now().Add(time.Hour)
	if err := s.ReplaceMessages(ctx, "s1", []Message{{Role: RoleAI, Content: "summary", Timestamp: future}}); err != nil {
		t.Fatalf("ReplaceMessages: %v", err)
	}

	got, ok, err := s.AppendMessage(ctx, "s1", RoleHuman, "next")
	if err != nil || !ok {
		t.Fatalf("AppendMessage: ok=%v err=%v", ok, err)
	}
	if got.Timestamp.Before(future.UTC().Truncate(time.Nanosecond)) {
		t.Errorf("timestamp %v went backwards from %v", got.Timestamp, future)
	}
}

func TestReplaceMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, "s1"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	for _, c := range []string{"a", "b", "c"} {
		if _, _, err := s.AppendMessage(ctx, "s1", RoleHuman, c); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	if err := s.ReplaceMessages(ctx, "s1", []Message{{Role: RoleAI, Content: "summary"}}); err != nil {
		t.Fatalf("ReplaceMessages: %v", err)
	}

	msgs, err := s.GetMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len = %d, want 1", len(msgs))
	}
	if msgs[0].Role != RoleAI || msgs[0].Content != "summary" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	if msgs[0].Timestamp.IsZero() {
		t.Error("expected a timestamp on the replacement message")
	}
}

func TestReplaceMessages_MissingSession(t *testing.T) {
	s := openTestStore(t)

	err := s.ReplaceMessages(context.Background(), "ghost", []Message{{Role: RoleAI, Content: "x"}})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListSessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := s.CreateSession(ctx, id); err != nil {
			t.Fatalf("CreateSession %s: %v", id, err)
		}
	}
	ids, err := s.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("len = %d, want 2", len(ids))
	}
}

func TestVectorstoreMetadata_Upsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertVectorstoreMetadata(ctx, "u1", "/first"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertVectorstoreMetadata(ctx, "u1", "/second"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectorstore_metadata WHERE user_id = ?`, "u1").Scan(&n); err != nil {
		t.Fatalf("counting metadata rows: %v", err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}

	m, err := s.GetVectorstoreMetadata(ctx, "u1")
	if err != nil {
		t.Fatalf("GetVectorstoreMetadata: %v", err)
	}
	if m.VectorstorePath != "/second" {
		t.Errorf("path = %q, want %q", m.VectorstorePath, "/second")
	}
}

func TestGetVectorstoreMetadata_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetVectorstoreMetadata(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
