package claims

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrVersionConflict is returned by Update when the claim changed underneath
// the caller. The optimistic version check prevents a scrub and a submit
// racing on the same claim from losing writes.
var ErrVersionConflict = errors.New("claim version conflict")

// Filter selects claims for listing and counting.
type Filter struct {
	Status      *Status
	ScrubStatus *ScrubStatus
	PatientID   *uuid.UUID
	ProviderID  *uuid.UUID
	PayerID     *uuid.UUID
	ServiceFrom *time.Time
	ServiceTo   *time.Time
	Limit       int
	Offset      int
}

// StatusCount pairs a lifecycle status with its claim count.
type StatusCount struct {
	Status Status `json:"status"`
	Count  int    `json:"count"`
}

// ScrubStatusCount pairs a scrub status with its claim count.
type ScrubStatusCount struct {
	Status ScrubStatus `json:"status"`
	Count  int         `json:"count"`
}

// StatsOverview is the aggregate picture of the claim inventory.
type StatsOverview struct {
	Total            int                `json:"total"`
	ByStatus         []StatusCount      `json:"by_status"`
	ByScrubStatus    []ScrubStatusCount `json:"by_scrub_status"`
	AverageCharges   float64            `json:"average_charges"`
	ReadyToSubmit    int                `json:"ready_to_submit"`
	NeedingScrubbing int                `json:"needing_scrubbing"`
}

// Repository is the claim store.
type Repository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	// Update performs an optimistic read-modify-write: it matches on the
	// claim's current VersionID and returns ErrVersionConflict when the row
	// has moved on.
	Update(ctx context.Context, c *Claim) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter) ([]*Claim, int, error)
	// NextSequence atomically advances the per-day claim number counter.
	NextSequence(ctx context.Context, day time.Time) (int64, error)
	Stats(ctx context.Context, from, to *time.Time) (*StatsOverview, error)
}
