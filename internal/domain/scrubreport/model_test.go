package scrubreport

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claimwise/claimwise/internal/scrub"
)

func sampleResult() scrub.Result {
	return scrub.Result{
		Status: scrub.StatusFail,
		Errors: []scrub.Issue{{
			RuleID:   "charge-consistency",
			Severity: scrub.SeverityError,
			Field:    "total_charges",
			Message:  "mismatch",
		}},
		Warnings: []scrub.Issue{{
			RuleID:   "payer-group-number",
			Severity: scrub.SeverityWarning,
			Field:    "group_number",
			Message:  "missing",
		}},
		Info:        []scrub.Issue{},
		FixedIssues: []scrub.FixedIssue{},
		Summary:     scrub.Summary{Errors: 1, Warnings: 1},
		Duration:    42 * time.Millisecond,
	}
}

func TestFromResult(t *testing.T) {
	claimID := uuid.New()
	at := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	rep := FromResult(claimID, "CLM-20260213-000042", sampleResult(),
		scrub.Options{AutoFix: false}, "user-1", at)

	if rep.ClaimID != claimID || rep.ClaimNumber != "CLM-20260213-000042" {
		t.Fatalf("claim reference not carried: %+v", rep)
	}
	if rep.DurationMS != 42 {
		t.Fatalf("expected 42ms, got %d", rep.DurationMS)
	}
	if rep.ScrubbedBy != "user-1" || !rep.ScrubbedAt.Equal(at) {
		t.Fatalf("actor/timestamp not carried: %+v", rep)
	}
	if len(rep.Recommendations) == 0 {
		t.Fatal("expected recommendations derived from the result")
	}
	if err := rep.Validate(); err != nil {
		t.Fatalf("expected valid report: %v", err)
	}
}

func TestFromResultRecordsFixActions(t *testing.T) {
	res := sampleResult()
	res.Errors = nil
	res.FixedIssues = []scrub.FixedIssue{{
		RuleID:  "charge-consistency",
		Changes: []scrub.FieldChange{{Field: "total_charges", From: 300.0, To: 250.0}},
		Message: "auto-fixed",
	}}
	res.Summary = scrub.Summary{Warnings: 1, AutoFixed: 1}
	res.Status = scrub.StatusFixed

	rep := FromResult(uuid.New(), "CLM-X", res, scrub.Options{AutoFix: true}, "u", time.Now())
	if len(rep.Actions) != 1 {
		t.Fatalf("expected one action log entry, got %v", rep.Actions)
	}
}

func TestValidateRejectsMismatchedSummary(t *testing.T) {
	rep := FromResult(uuid.New(), "CLM-X", sampleResult(), scrub.Options{}, "u", time.Now())
	rep.Summary.Errors = 5
	if err := rep.Validate(); err == nil {
		t.Fatal("expected summary mismatch to be rejected")
	}
}

func TestValidateRejectsMissingClaim(t *testing.T) {
	rep := FromResult(uuid.Nil, "CLM-X", sampleResult(), scrub.Options{}, "u", time.Now())
	if err := rep.Validate(); err == nil {
		t.Fatal("expected missing claim reference to be rejected")
	}
}
