// Package claims implements the billing claim aggregate, its lifecycle state
// machine, and the orchestration service that runs scrubs, persists reports,
// and drives submission and resubmission.
package claims

import (
	"time"

	"github.com/google/uuid"

	"github.com/claimwise/claimwise/internal/scrub"
)

// Status is a claim's lifecycle state.
type Status string

const (
	StatusDraft             Status = "draft"
	StatusReady             Status = "ready"
	StatusSubmitted         Status = "submitted"
	StatusPending           Status = "pending"
	StatusProcessing        Status = "processing"
	StatusApproved          Status = "approved"
	StatusPartiallyApproved Status = "partially_approved"
	StatusDenied            Status = "denied"
	StatusAppealed          Status = "appealed"
	StatusPaid              Status = "paid"
	StatusClosed            Status = "closed"
)

var validStatuses = map[Status]bool{
	StatusDraft: true, StatusReady: true, StatusSubmitted: true,
	StatusPending: true, StatusProcessing: true, StatusApproved: true,
	StatusPartiallyApproved: true, StatusDenied: true, StatusAppealed: true,
	StatusPaid: true, StatusClosed: true,
}

// ScrubStatus is the claim-level scrubbing state, updated only by scrub runs
// or edits that invalidate a previous run.
type ScrubStatus string

const (
	ScrubNotScrubbed      ScrubStatus = "not_scrubbed"
	ScrubPass             ScrubStatus = "pass"
	ScrubPassWithWarnings ScrubStatus = "pass_with_warnings"
	ScrubFail             ScrubStatus = "fail"
	ScrubFixed            ScrubStatus = "fixed"
)

// ProcedureLine is one billable service line on a claim.
type ProcedureLine struct {
	Code        string     `json:"code"`
	Modifier    string     `json:"modifier,omitempty"`
	ServiceDate *time.Time `json:"service_date,omitempty"`
	Quantity    float64    `json:"quantity"`
	UnitCharge  float64    `json:"unit_charge"`
}

// ScrubInfo is the claim's scrubbing bookkeeping.
type ScrubInfo struct {
	LastScrubDate  *time.Time  `json:"last_scrub_date,omitempty"`
	Status         ScrubStatus `json:"status"`
	ErrorCount     int         `json:"error_count"`
	WarningCount   int         `json:"warning_count"`
	AutoFixedCount int         `json:"auto_fixed_count"`
	LatestReportID *uuid.UUID  `json:"latest_report_id,omitempty"`
}

// SubmissionInfo records how and when a claim went out the door.
type SubmissionInfo struct {
	SubmittedBy    string    `json:"submitted_by"`
	SubmittedAt    time.Time `json:"submitted_at"`
	TrackingNumber string    `json:"tracking_number"`
}

// Claim maps to the claims table.
type Claim struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ClaimNumber string    `db:"claim_number" json:"claim_number"`

	PatientID  uuid.UUID  `db:"patient_id" json:"patient_id"`
	ProviderID uuid.UUID  `db:"provider_id" json:"provider_id"`
	PayerID    *uuid.UUID `db:"payer_id" json:"payer_id,omitempty"`

	InsuranceType string `db:"insurance_type" json:"insurance_type,omitempty"`
	PolicyNumber  string `db:"policy_number" json:"policy_number,omitempty"`
	GroupNumber   string `db:"group_number" json:"group_number,omitempty"`

	ServiceDate    time.Time       `db:"service_date" json:"service_date"`
	DiagnosisCodes []string        `db:"diagnosis_codes" json:"diagnosis_codes"`
	Procedures     []ProcedureLine `db:"procedures" json:"procedures"`
	TotalCharges   float64         `db:"total_charges" json:"total_charges"`

	Status    Status          `db:"status" json:"status"`
	Scrubbing ScrubInfo       `db:"scrubbing" json:"scrubbing"`
	Submission *SubmissionInfo `db:"submission" json:"submission,omitempty"`

	// Resubmission lineage: set on the replacement claim, never on the original.
	ResubmissionOf     *uuid.UUID `db:"resubmission_of" json:"resubmission_of,omitempty"`
	ResubmissionReason string     `db:"resubmission_reason" json:"resubmission_reason,omitempty"`

	CreatedBy string    `db:"created_by" json:"created_by"`
	UpdatedBy string    `db:"updated_by" json:"updated_by"`
	VersionID int       `db:"version_id" json:"version_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GetVersionID returns the current version.
func (c *Claim) GetVersionID() int { return c.VersionID }

// SetVersionID sets the current version.
func (c *Claim) SetVersionID(v int) { c.VersionID = v }

// IsEditable reports whether billing fields may still change. Anything past
// draft is immutable except scrubbing/submission bookkeeping.
func (c *Claim) IsEditable() bool { return c.Status == StatusDraft }

// IsPreSubmission reports whether the claim can still be scrubbed.
func (c *Claim) IsPreSubmission() bool {
	return c.Status == StatusDraft || c.Status == StatusReady
}

// IsReadyForSubmission is the submission guard: the latest scrub must have
// ended pass, pass_with_warnings, or fixed.
func (c *Claim) IsReadyForSubmission() bool {
	switch c.Scrubbing.Status {
	case ScrubPass, ScrubPassWithWarnings, ScrubFixed:
		return c.IsPreSubmission()
	}
	return false
}

// CanResubmit reports whether a replacement claim may be spawned.
func (c *Claim) CanResubmit() bool {
	switch c.Status {
	case StatusSubmitted, StatusDenied, StatusAppealed:
		return true
	}
	return false
}

// IsWithinTimelyFiling reports whether the claim would still be inside the
// payer filing window if submitted now.
func (c *Claim) IsWithinTimelyFiling(limitDays int, now time.Time) bool {
	if c.ServiceDate.IsZero() {
		return true
	}
	return int(now.Sub(c.ServiceDate).Hours()/24) <= limitDays
}

// LineTotal sums the procedure-line charges.
func (c *Claim) LineTotal() float64 {
	var sum float64
	for _, l := range c.Procedures {
		sum += l.Quantity * l.UnitCharge
	}
	return sum
}

// Snapshot converts the claim into the engine's input form.
func (c *Claim) Snapshot() scrub.Claim {
	s := scrub.Claim{
		ClaimNumber:    c.ClaimNumber,
		PatientID:      uuidString(c.PatientID),
		ProviderID:     uuidString(c.ProviderID),
		InsuranceType:  c.InsuranceType,
		PolicyNumber:   c.PolicyNumber,
		GroupNumber:    c.GroupNumber,
		ServiceDate:    c.ServiceDate,
		DiagnosisCodes: append([]string(nil), c.DiagnosisCodes...),
		TotalCharges:   c.TotalCharges,
	}
	if c.PayerID != nil {
		s.PayerID = c.PayerID.String()
	}
	s.Procedures = make([]scrub.ProcedureLine, len(c.Procedures))
	for i, l := range c.Procedures {
		s.Procedures[i] = scrub.ProcedureLine{
			Code:        l.Code,
			Modifier:    l.Modifier,
			ServiceDate: l.ServiceDate,
			Quantity:    l.Quantity,
			UnitCharge:  l.UnitCharge,
		}
	}
	return s
}

// ApplySnapshot writes an auto-fixed snapshot's billing fields back onto the
// claim. Only fields the engine's fixes can touch are copied.
func (c *Claim) ApplySnapshot(s scrub.Claim) {
	c.TotalCharges = s.TotalCharges
	c.Procedures = make([]ProcedureLine, len(s.Procedures))
	for i, l := range s.Procedures {
		c.Procedures[i] = ProcedureLine{
			Code:        l.Code,
			Modifier:    l.Modifier,
			ServiceDate: l.ServiceDate,
			Quantity:    l.Quantity,
			UnitCharge:  l.UnitCharge,
		}
	}
}

// ResetScrubbing invalidates any previous scrub result after a billing edit.
func (c *Claim) ResetScrubbing() {
	c.Scrubbing = ScrubInfo{Status: ScrubNotScrubbed}
}

func uuidString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
