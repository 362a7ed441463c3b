package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/arogyasahayak/sahayak/internal/providers"
	"github.com/arogyasahayak/sahayak/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := New(db)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	turns := []providers.Message{
		{Role: providers.RoleUser, Content: "I have a headache"},
		{Role: providers.RoleAssistant, Content: "How long has it lasted?"},
		{Role: providers.RoleUser, Content: "Two days"},
	}
	for _, turn := range turns {
		if err := s.Append(ctx, "s1", turn.Role, turn.Content); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, "s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(turns) {
		t.Fatalf("got %d turns, want %d", len(got), len(turns))
	}
	for i := range turns {
		if got[i] != turns[i] {
			t.Errorf("turn %d = %+v, want %+v", i, got[i], turns[i])
		}
	}
}

func TestRecentLimitKeepsNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := s.Append(ctx, "s1", providers.RoleUser, fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, "s1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d turns, want 3", len(got))
	}
	if got[0].Content != "msg 7" || got[2].Content != "msg 9" {
		t.Errorf("expected newest three oldest-first, got %+v", got)
	}
}

func TestSessionsIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "a", providers.RoleUser, "from a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, "b", providers.RoleUser, "from b"); err != nil {
		t.Fatal(err)
	}

	got, err := s.Recent(ctx, "a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "from a" {
		t.Errorf("session isolation broken: %+v", got)
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "s1", providers.RoleUser, "hello"); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx, "s1"); err != nil {
		t.Fatal(err)
	}

	got, err := s.Recent(ctx, "s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty session after clear, got %+v", got)
	}
}
