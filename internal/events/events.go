package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// KindBurn reports demurrage or an explicit burn removing supply.
	KindBurn = "burn"
	// KindIncome reports a UBI settlement.
	KindIncome = "income"
	// KindShareIncome reports a portion of UBI redirected to a beneficiary.
	KindShareIncome = "shareincome"
	// KindTransfer reports funds moving between accounts.
	KindTransfer = "transfer"
	// KindIssue reports newly minted supply.
	KindIssue = "issue"
	// KindRetire reports supply retired by the issuer.
	KindRetire = "retire"
)

// Event is a fire-and-forget notification about a ledger change. Account is
// the party the event is addressed to; Data carries the structured payload.
type Event struct {
	ID      string
	Kind    string
	Account string
	Data    map[string]string
	At      time.Time
}

// New stamps an event with an identifier and the current time.
func New(kind, account string, data map[string]string) Event {
	return Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		Account: account,
		Data:    data,
		At:      time.Now().UTC(),
	}
}

// Emitter delivers events to downstream observers.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Recorder collects events produced inside a transaction.
type Recorder interface {
	Record(event Event)
}

// Buffer holds events until the surrounding transaction commits so observers
// never see effects that were rolled back.
type Buffer struct {
	events []Event
}

// Record appends an event.
func (b *Buffer) Record(event Event) {
	b.events = append(b.events, event)
}

// Events returns the buffered events in recording order.
func (b *Buffer) Events() []Event {
	return b.events
}

// Flush emits all buffered events and empties the buffer. Delivery is best
// effort: every event is attempted and the errors are joined.
func (b *Buffer) Flush(ctx context.Context, emitter Emitter) error {
	if emitter == nil {
		b.events = nil
		return nil
	}
	var errs []error
	for _, ev := range b.events {
		if err := emitter.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	b.events = nil
	return errors.Join(errs...)
}

// LoggerEmitter writes events to the structured logger.
type LoggerEmitter struct {
	logger *slog.Logger
}

// NewLoggerEmitter constructs a logging emitter.
func NewLoggerEmitter(logger *slog.Logger) *LoggerEmitter {
	return &LoggerEmitter{logger: logger}
}

// Emit writes the event to the structured logger.
func (e *LoggerEmitter) Emit(ctx context.Context, event Event) error {
	if e == nil || e.logger == nil {
		return nil
	}
	attrs := make([]any, 0, len(event.Data)+3)
	attrs = append(attrs, slog.String("event_id", event.ID), slog.String("kind", event.Kind), slog.String("account", event.Account))
	for k, v := range event.Data {
		attrs = append(attrs, slog.String(k, v))
	}
	e.logger.InfoContext(ctx, "ledger event", attrs...)
	return nil
}

// Multi fans an event out to several emitters.
type Multi []Emitter

// Emit delivers to every emitter and joins the errors.
func (m Multi) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
