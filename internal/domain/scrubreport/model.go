// Package scrubreport holds the append-only audit records of scrub runs.
// A report is immutable once written; history per claim forms a singly
// linked chain through PreviousReportID.
package scrubreport

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/claimwise/claimwise/internal/scrub"
)

// Report maps to the scrub_reports table.
type Report struct {
	ID          uuid.UUID    `db:"id" json:"id"`
	ClaimID     uuid.UUID    `db:"claim_id" json:"claim_id"`
	ClaimNumber string       `db:"claim_number" json:"claim_number"`
	Status      scrub.Status `db:"status" json:"status"`

	Errors      []scrub.Issue      `db:"errors" json:"errors"`
	Warnings    []scrub.Issue      `db:"warnings" json:"warnings"`
	Info        []scrub.Issue      `db:"info" json:"info"`
	FixedIssues []scrub.FixedIssue `db:"fixed_issues" json:"fixed_issues"`

	Summary    scrub.Summary         `db:"summary" json:"summary"`
	Categories []scrub.CategoryCount `db:"categories" json:"categories"`

	// Run configuration.
	AutoFix        bool             `db:"auto_fix" json:"auto_fix"`
	CategoryFilter []scrub.Category `db:"category_filter" json:"category_filter,omitempty"`

	DurationMS int64     `db:"duration_ms" json:"duration_ms"`
	ScrubbedBy string    `db:"scrubbed_by" json:"scrubbed_by"`
	ScrubbedAt time.Time `db:"scrubbed_at" json:"scrubbed_at"`

	// ClaimSnapshot is the claim exactly as it was evaluated, kept for audit.
	ClaimSnapshot scrub.Claim `db:"claim_snapshot" json:"claim_snapshot"`

	Actions         []string               `db:"actions" json:"actions"`
	Recommendations []scrub.Recommendation `db:"recommendations" json:"recommendations"`

	PreviousReportID *uuid.UUID `db:"previous_report_id" json:"previous_report_id,omitempty"`
}

// FromResult builds a report from one engine run.
func FromResult(claimID uuid.UUID, claimNumber string, res scrub.Result, opts scrub.Options, actor string, at time.Time) *Report {
	r := &Report{
		ClaimID:         claimID,
		ClaimNumber:     claimNumber,
		Status:          res.Status,
		Errors:          res.Errors,
		Warnings:        res.Warnings,
		Info:            res.Info,
		FixedIssues:     res.FixedIssues,
		Summary:         res.Summary,
		Categories:      res.Categories,
		AutoFix:         opts.AutoFix,
		CategoryFilter:  opts.Categories,
		DurationMS:      res.Duration.Milliseconds(),
		ScrubbedBy:      actor,
		ScrubbedAt:      at,
		ClaimSnapshot:   res.Claim,
		Recommendations: scrub.Recommendations(res),
	}
	for _, fixed := range res.FixedIssues {
		for _, ch := range fixed.Changes {
			r.Actions = append(r.Actions, fmt.Sprintf("%s: changed %s from %v to %v",
				fixed.RuleID, ch.Field, ch.From, ch.To))
		}
	}
	return r
}

// Validate checks the report's internal invariants before it is persisted.
func (r *Report) Validate() error {
	if r.ClaimID == uuid.Nil {
		return fmt.Errorf("report has no claim reference")
	}
	if r.Summary.Errors != len(r.Errors) ||
		r.Summary.Warnings != len(r.Warnings) ||
		r.Summary.Info != len(r.Info) ||
		r.Summary.AutoFixed != len(r.FixedIssues) {
		return fmt.Errorf("summary counts do not match issue lists")
	}
	switch r.Status {
	case scrub.StatusPass, scrub.StatusPassWithWarnings, scrub.StatusFail, scrub.StatusFixed:
	default:
		return fmt.Errorf("invalid report status: %s", r.Status)
	}
	return nil
}
