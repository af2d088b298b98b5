// Package audit records structured claim lifecycle events on a best-effort
// basis. Recording never fails the transition that triggered it.
package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// Event is one structured lifecycle event.
type Event struct {
	Event       string
	ClaimID     string
	ClaimNumber string
	UserID      string
	Fields      map[string]interface{}
}

// Recorder accepts lifecycle events. Implementations must never panic or
// block the caller on failure.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context, e Event)

func (f RecorderFunc) Record(ctx context.Context, e Event) { f(ctx, e) }

// Nop discards every event. The explicit no-op default for construction
// without an audit sink.
func Nop() Recorder {
	return RecorderFunc(func(context.Context, Event) {})
}

type zerologRecorder struct {
	logger zerolog.Logger
}

// NewZerolog returns a Recorder that writes events through the given logger.
func NewZerolog(logger zerolog.Logger) Recorder {
	return &zerologRecorder{logger: logger}
}

func (r *zerologRecorder) Record(_ context.Context, e Event) {
	// Swallow anything a misbehaving sink throws; audit is best-effort.
	defer func() { _ = recover() }()

	evt := r.logger.Info().
		Str("event", e.Event).
		Str("claim_id", e.ClaimID).
		Str("claim_number", e.ClaimNumber).
		Str("user_id", e.UserID)
	for k, v := range e.Fields {
		evt = evt.Interface(k, v)
	}
	evt.Msg("claim audit")
}
