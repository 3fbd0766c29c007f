package jobs

import (
	"context"
	"testing"
)

func TestReembedChunksNoopOnEmptyList(t *testing.T) {
	l := New(nil, nil)
	if err := l.ReembedChunks(context.Background(), "doc1", nil); err != nil {
		t.Fatalf("expected no error for empty chunk id list, got %v", err)
	}
}

func TestStateConstants(t *testing.T) {
	states := []State{StateQueued, StateRunning, StateFinished, StateStopped, StateFailed}
	seen := map[State]struct{}{}
	for _, s := range states {
		if s == "" {
			t.Fatal("empty state constant")
		}
		if _, dup := seen[s]; dup {
			t.Fatalf("duplicate state value %q", s)
		}
		seen[s] = struct{}{}
	}
}
