package claims

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// FormatClaimNumber derives a claim number from a timestamp and a sequence
// value. Pure and deterministic: the same inputs always yield the same
// number. The sequence comes from an atomic per-day counter in the store, so
// two claims created in the same instant still get distinct numbers.
func FormatClaimNumber(t time.Time, seq int64) string {
	return fmt.Sprintf("CLM-%s-%06d", t.UTC().Format("20060102"), seq)
}

// TrackingNumbers issues submission tracking numbers. ULIDs sort by issue
// time, which keeps clearinghouse exports in submission order.
type TrackingNumbers struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewTrackingNumbers returns a generator seeded from the given clock.
func NewTrackingNumbers(now func() time.Time) *TrackingNumbers {
	if now == nil {
		now = time.Now
	}
	seed := rand.New(rand.NewSource(now().UnixNano()))
	return &TrackingNumbers{
		entropy: ulid.Monotonic(seed, 0),
		now:     now,
	}
}

// Next returns a fresh tracking number. Safe for concurrent use.
func (g *TrackingNumbers) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
	return "TRK-" + id.String()
}
