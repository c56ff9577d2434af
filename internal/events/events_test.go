package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type failingEmitter struct{ calls int }

func (f *failingEmitter) Emit(context.Context, Event) error {
	f.calls++
	return errors.New("unavailable")
}

type captureEmitter struct{ got []Event }

func (c *captureEmitter) Emit(_ context.Context, ev Event) error {
	c.got = append(c.got, ev)
	return nil
}

func TestBufferFlushPreservesOrder(t *testing.T) {
	var buf Buffer
	buf.Record(New(KindBurn, "alice", map[string]string{"quantity": "0.0003 XDL"}))
	buf.Record(New(KindIncome, "alice", nil))

	sink := &captureEmitter{}
	if err := buf.Flush(context.Background(), sink); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(sink.got) != 2 || sink.got[0].Kind != KindBurn || sink.got[1].Kind != KindIncome {
		t.Fatalf("unexpected events %+v", sink.got)
	}
	if len(buf.Events()) != 0 {
		t.Fatal("expected buffer to be empty after flush")
	}
}

func TestBufferFlushAttemptsEveryEvent(t *testing.T) {
	var buf Buffer
	buf.Record(New(KindBurn, "a", nil))
	buf.Record(New(KindBurn, "b", nil))

	f := &failingEmitter{}
	if err := buf.Flush(context.Background(), f); err == nil {
		t.Fatal("expected joined error")
	}
	if f.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", f.calls)
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := &captureEmitter{}, &captureEmitter{}
	m := Multi{a, nil, b}
	if err := m.Emit(context.Background(), New(KindTransfer, "bob", nil)); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("expected both emitters to receive the event")
	}
}

func TestRedisEmitterAppendsToStream(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	ctx := context.Background()
	em := NewRedisEmitter(cache, "", 0)
	ev := New(KindShareIncome, "carol", map[string]string{"from": "alice", "percent": "40"})
	if err := em.Emit(ctx, ev); err != nil {
		t.Fatalf("emit: %v", err)
	}

	msgs, err := cache.XRange(ctx, DefaultStream, "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 stream entry, got %d", len(msgs))
	}
	vals := msgs[0].Values
	if vals["kind"] != KindShareIncome || vals["account"] != "carol" || vals["id"] != ev.ID {
		t.Fatalf("unexpected values %+v", vals)
	}
	var data map[string]string
	if err := json.Unmarshal([]byte(vals["data"].(string)), &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["percent"] != "40" {
		t.Fatalf("unexpected data %+v", data)
	}
}
