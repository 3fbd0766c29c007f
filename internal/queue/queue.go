// Package queue implements the external Queue contract from spec §6 on top
// of Redis (mined from jordigilh-kubernaut's go-redis/v9 dependency): at
// least once delivery, nack-by-visibility-reset, explicit receipt tokens.
//
// Messages are pushed onto a list keyed by queue name. Receive moves a
// message atomically onto the queue's processing list, shared by every
// consumer of that queue (the classic reliable-queue pattern), so a crashed
// consumer's messages are recoverable;
// each received message gets a minted receipt token that maps to its
// processing-list entry. Delete removes that entry;
// ExtendVisibility(0) (nack) pushes it back onto the head of the main queue.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/amplify-rag/ingestcore/internal/apperr"
)

type Message struct {
	Body    string
	Receipt string
}

type Queue struct {
	rdb        *redis.Client
	consumerID string
}

func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb, consumerID: uuid.NewString()}
}

func mainKey(queueURL string) string       { return "queue:" + queueURL }
func processingKey(queueURL string) string { return "queue:" + queueURL + ":processing" }
func receiptKey(receipt string) string     { return "queue:receipt:" + receipt }

// Send enqueues a JSON body onto queueURL.
func (q *Queue) Send(ctx context.Context, queueURL, body string) error {
	if err := q.rdb.LPush(ctx, mainKey(queueURL), body).Err(); err != nil {
		return apperr.Upstream("queue send", err)
	}
	return nil
}

// Receive pops up to max messages, moving each atomically to the processing
// list and minting a receipt for it. At-least-once: a message only leaves
// the processing list when Delete is called.
func (q *Queue) Receive(ctx context.Context, queueURL string, max int) ([]Message, error) {
	var out []Message
	for i := 0; i < max; i++ {
		body, err := q.rdb.RPopLPush(ctx, mainKey(queueURL), processingKey(queueURL)).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return out, apperr.Upstream("queue receive", err)
		}
		receipt := uuid.NewString()
		// The receipt maps back to the exact body so Delete/nack can find it
		// even if other messages with identical bodies are in flight.
		if err := q.rdb.Set(ctx, receiptKey(receipt), body, 10*time.Minute).Err(); err != nil {
			return out, apperr.Upstream("queue track receipt", err)
		}
		out = append(out, Message{Body: body, Receipt: receipt})
	}
	return out, nil
}

// Delete acknowledges a message, removing it from the processing list.
func (q *Queue) Delete(ctx context.Context, queueURL, receipt string) error {
	body, err := q.rdb.Get(ctx, receiptKey(receipt)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return apperr.Upstream("queue delete lookup", err)
	}
	if err := q.rdb.LRem(ctx, processingKey(queueURL), 1, body).Err(); err != nil {
		return apperr.Upstream("queue delete", err)
	}
	q.rdb.Del(ctx, receiptKey(receipt))
	return nil
}

// ExtendVisibility with timeoutSeconds=0 nacks the message: it is returned
// to the head of the main queue for immediate redelivery, matching spec
// §6's `extend_visibility(queueUrl, receipt, 0)` nack convention.
func (q *Queue) ExtendVisibility(ctx context.Context, queueURL, receipt string, timeoutSeconds int) error {
	if timeoutSeconds != 0 {
		// Real visibility-timeout extension (keep message invisible longer)
		// is a TTL bump on the receipt; nothing to move.
		return q.rdb.Expire(ctx, receiptKey(receipt), time.Duration(timeoutSeconds)*time.Second).Err()
	}

	body, err := q.rdb.Get(ctx, receiptKey(receipt)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return apperr.Upstream("queue nack lookup", err)
	}
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, processingKey(queueURL), 1, body)
	pipe.RPush(ctx, mainKey(queueURL), body)
	pipe.Del(ctx, receiptKey(receipt))
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.Upstream("queue nack", err)
	}
	return nil
}

// Depth reports the number of undelivered messages, used by the metrics
// collector's queue_depth gauge.
func (q *Queue) Depth(ctx context.Context, queueURL string) (int64, error) {
	n, err := q.rdb.LLen(ctx, mainKey(queueURL)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}
