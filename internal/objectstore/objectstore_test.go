package objectstore

import (
	"context"
	"testing"
)

func TestMemoryPutGetHead(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Put(ctx, "uploads", "a/b.txt", []byte("hello"), "text/plain"); err != nil {
		t.Fatalf("put: %v", err)
	}

	data, err := m.Get(ctx, "uploads", "a/b.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q", data)
	}

	meta, err := m.Head(ctx, "uploads", "a/b.txt")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if meta.Size != 5 || meta.Mime != "text/plain" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestMemoryMissingObject(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.Get(ctx, "uploads", "missing"); err == nil {
		t.Fatal("expected not-found error")
	}
}
