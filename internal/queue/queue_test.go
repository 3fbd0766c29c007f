package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb)
}

func TestSendReceiveDelete(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	if err := q.Send(ctx, "lane:text", `{"document_id":"d1"}`); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs, err := q.Receive(ctx, "lane:text", 5)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("want 1 message, got %d", len(msgs))
	}
	if msgs[0].Body != `{"document_id":"d1"}` {
		t.Fatalf("unexpected body %q", msgs[0].Body)
	}

	// Receiving again returns nothing: the message moved to the processing list.
	again, err := q.Receive(ctx, "lane:text", 5)
	if err != nil {
		t.Fatalf("receive again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no messages while one is in flight, got %d", len(again))
	}

	if err := q.Delete(ctx, "lane:text", msgs[0].Receipt); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestNackRedelivers(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_ = q.Send(ctx, "lane:visual", "payload")
	msgs, _ := q.Receive(ctx, "lane:visual", 1)
	if len(msgs) != 1 {
		t.Fatalf("expected to receive 1 message, got %d", len(msgs))
	}

	if err := q.ExtendVisibility(ctx, "lane:visual", msgs[0].Receipt, 0); err != nil {
		t.Fatalf("nack: %v", err)
	}

	redelivered, err := q.Receive(ctx, "lane:visual", 1)
	if err != nil {
		t.Fatalf("receive after nack: %v", err)
	}
	if len(redelivered) != 1 || redelivered[0].Body != "payload" {
		t.Fatalf("expected nacked message to be redelivered, got %+v", redelivered)
	}
}

func TestDepth(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_ = q.Send(ctx, "lane:text", "a")
	_ = q.Send(ctx, "lane:text", "b")

	depth, err := q.Depth(ctx, "lane:text")
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth != 2 {
		t.Fatalf("want depth 2, got %d", depth)
	}
}
