package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream ledger events are appended to.
const DefaultStream = "ledger:events"

// RedisEmitter appends events to a Redis stream so external consumers can
// follow the ledger with XREAD / consumer groups.
type RedisEmitter struct {
	cache  *redis.Client
	stream string
	maxLen int64
}

// NewRedisEmitter builds an emitter writing to stream. maxLen > 0 caps the
// stream length approximately.
func NewRedisEmitter(cache *redis.Client, stream string, maxLen int64) *RedisEmitter {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisEmitter{cache: cache, stream: stream, maxLen: maxLen}
}

// Emit appends the event with XADD.
func (e *RedisEmitter) Emit(ctx context.Context, event Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: e.stream,
		Values: map[string]any{
			"id":      event.ID,
			"kind":    event.Kind,
			"account": event.Account,
			"data":    string(data),
			"at":      event.At.Format(time.RFC3339Nano),
		},
	}
	if e.maxLen > 0 {
		args.MaxLen = e.maxLen
		args.Approx = true
	}
	if err := e.cache.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", e.stream, err)
	}
	return nil
}
