package status

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestStatusIDAndChannel(t *testing.T) {
	if got := statusID("docs", "abc123"); got != "docs/abc123" {
		t.Fatalf("statusID = %q", got)
	}
	if got := Channel("docs", "abc123"); got != "ingestcore:status:docs/abc123" {
		t.Fatalf("Channel = %q", got)
	}
}

func TestPublishNoopWhenRedisNil(t *testing.T) {
	tr := New(nil, nil, nil)
	// must not panic or block with a nil redis client
	tr.publish(context.Background(), "docs/abc", StateQueued, 0, nil)
}

func TestPublishSendsRecordOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tr := New(nil, rdb, nil)

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, Channel("docs", "abc"))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	done := make(chan *redis.Message, 1)
	go func() {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return
		}
		done <- msg
	}()

	tr.publish(ctx, statusID("docs", "abc"), StateEmbedding, 42, map[string]any{"k": "v"})

	select {
	case msg := <-done:
		var rec Record
		if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
			t.Fatalf("unmarshal published record: %v", err)
		}
		if rec.State != StateEmbedding || rec.Progress != 42 {
			t.Fatalf("unexpected record: %+v", rec)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}
