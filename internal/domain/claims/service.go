package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/claimwise/claimwise/internal/domain/scrubreport"
	"github.com/claimwise/claimwise/internal/platform/apperror"
	"github.com/claimwise/claimwise/internal/platform/audit"
	"github.com/claimwise/claimwise/internal/platform/auth"
	"github.com/claimwise/claimwise/internal/scrub"
)

// Service orchestrates the claim pipeline: it runs the rule engine, persists
// scrub reports, advances claim status, and handles submission and
// resubmission. The engine never touches persistence; the lifecycle never
// evaluates rules directly.
type Service struct {
	claims  Repository
	reports scrubreport.Repository
	engine  *scrub.Engine

	auditor          audit.Recorder
	tracking         *TrackingNumbers
	timelyFilingDays int
	batchWorkers     int
	now              func() time.Time
}

// NewService wires the orchestration service. Audit defaults to a no-op
// recorder; attach a real one with SetAuditRecorder.
func NewService(claimRepo Repository, reportRepo scrubreport.Repository, engine *scrub.Engine) *Service {
	return &Service{
		claims:           claimRepo,
		reports:          reportRepo,
		engine:           engine,
		auditor:          audit.Nop(),
		tracking:         NewTrackingNumbers(nil),
		timelyFilingDays: scrub.DefaultTimelyFilingDays,
		batchWorkers:     4,
		now:              time.Now,
	}
}

// SetAuditRecorder attaches the audit collaborator.
func (s *Service) SetAuditRecorder(r audit.Recorder) {
	if r != nil {
		s.auditor = r
	}
}

// SetTimelyFilingDays overrides the submission-risk window.
func (s *Service) SetTimelyFilingDays(days int) {
	if days > 0 {
		s.timelyFilingDays = days
	}
}

// SetBatchWorkers bounds batch scrub parallelism.
func (s *Service) SetBatchWorkers(n int) {
	if n > 0 {
		s.batchWorkers = n
	}
}

// SetClock injects a clock for tests.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// record emits an audit event; recording is best-effort by contract.
func (s *Service) record(ctx context.Context, event string, c *Claim, actor auth.Identity, fields map[string]interface{}) {
	s.auditor.Record(ctx, audit.Event{
		Event:       event,
		ClaimID:     c.ID.String(),
		ClaimNumber: c.ClaimNumber,
		UserID:      actor.UserID,
		Fields:      fields,
	})
}

// authorize enforces row-level access: patients act only on their own
// claims, practitioners only on claims they render.
func (s *Service) authorize(actor auth.Identity, c *Claim) error {
	switch actor.Role {
	case auth.RolePatient:
		if actor.PatientID == nil || *actor.PatientID != c.PatientID {
			return apperror.Forbidden("claim %s does not belong to this patient", c.ClaimNumber)
		}
	case auth.RolePractitioner:
		if actor.ProviderID == nil || *actor.ProviderID != c.ProviderID {
			return apperror.Forbidden("claim %s is not rendered by this practitioner", c.ClaimNumber)
		}
	}
	return nil
}

// scopeFilter narrows a list filter to the rows the actor may see.
func (s *Service) scopeFilter(actor auth.Identity, f Filter) (Filter, error) {
	switch actor.Role {
	case auth.RolePatient:
		if actor.PatientID == nil {
			return f, apperror.Forbidden("patient identity has no patient reference")
		}
		f.PatientID = actor.PatientID
	case auth.RolePractitioner:
		if actor.ProviderID == nil {
			return f, apperror.Forbidden("practitioner identity has no provider reference")
		}
		f.ProviderID = actor.ProviderID
	}
	return f, nil
}

// CreateInput carries the billing fields for a new claim.
type CreateInput struct {
	PatientID      uuid.UUID       `json:"patient_id"`
	ProviderID     uuid.UUID       `json:"provider_id"`
	PayerID        *uuid.UUID      `json:"payer_id,omitempty"`
	InsuranceType  string          `json:"insurance_type,omitempty"`
	PolicyNumber   string          `json:"policy_number,omitempty"`
	GroupNumber    string          `json:"group_number,omitempty"`
	ServiceDate    time.Time       `json:"service_date"`
	DiagnosisCodes []string        `json:"diagnosis_codes"`
	Procedures     []ProcedureLine `json:"procedures"`
	TotalCharges   float64         `json:"total_charges"`
}

func (in *CreateInput) validate() error {
	if in.PatientID == uuid.Nil {
		return apperror.BadRequest("patient reference is required")
	}
	if len(in.DiagnosisCodes) == 0 && len(in.Procedures) == 0 {
		return apperror.BadRequest("claim needs at least one diagnosis code or procedure line")
	}
	return nil
}

// Create opens a new draft claim and assigns its immutable claim number.
func (s *Service) Create(ctx context.Context, actor auth.Identity, in *CreateInput) (*Claim, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	c := &Claim{
		PatientID:      in.PatientID,
		ProviderID:     in.ProviderID,
		PayerID:        in.PayerID,
		InsuranceType:  in.InsuranceType,
		PolicyNumber:   in.PolicyNumber,
		GroupNumber:    in.GroupNumber,
		ServiceDate:    in.ServiceDate,
		DiagnosisCodes: in.DiagnosisCodes,
		Procedures:     in.Procedures,
		TotalCharges:   in.TotalCharges,
		Status:         StatusDraft,
		Scrubbing:      ScrubInfo{Status: ScrubNotScrubbed},
		CreatedBy:      actor.UserID,
		UpdatedBy:      actor.UserID,
	}
	if err := s.authorize(actor, c); err != nil {
		return nil, err
	}

	now := s.now()
	seq, err := s.claims.NextSequence(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("assign claim number: %w", err)
	}
	c.ClaimNumber = FormatClaimNumber(now, seq)

	if err := s.claims.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create claim: %w", err)
	}
	s.record(ctx, "claim.created", c, actor, nil)
	return c, nil
}

// Get loads a single claim, enforcing row-level access.
func (s *Service) Get(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Claim, error) {
	c, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateInput is a partial update; nil fields are left alone.
type UpdateInput struct {
	PayerID        *uuid.UUID       `json:"payer_id,omitempty"`
	InsuranceType  *string          `json:"insurance_type,omitempty"`
	PolicyNumber   *string          `json:"policy_number,omitempty"`
	GroupNumber    *string          `json:"group_number,omitempty"`
	ServiceDate    *time.Time       `json:"service_date,omitempty"`
	DiagnosisCodes *[]string        `json:"diagnosis_codes,omitempty"`
	Procedures     *[]ProcedureLine `json:"procedures,omitempty"`
	TotalCharges   *float64         `json:"total_charges,omitempty"`
}

// apply copies the set fields onto the claim and reports whether any field
// that invalidates a previous scrub was touched.
func (in *UpdateInput) apply(c *Claim) bool {
	invalidates := false
	if in.PayerID != nil {
		c.PayerID = in.PayerID
		invalidates = true
	}
	if in.InsuranceType != nil {
		c.InsuranceType = *in.InsuranceType
		invalidates = true
	}
	if in.PolicyNumber != nil {
		c.PolicyNumber = *in.PolicyNumber
		invalidates = true
	}
	if in.GroupNumber != nil {
		c.GroupNumber = *in.GroupNumber
		invalidates = true
	}
	if in.ServiceDate != nil {
		c.ServiceDate = *in.ServiceDate
	}
	if in.DiagnosisCodes != nil {
		c.DiagnosisCodes = *in.DiagnosisCodes
		invalidates = true
	}
	if in.Procedures != nil {
		c.Procedures = *in.Procedures
		invalidates = true
	}
	if in.TotalCharges != nil {
		c.TotalCharges = *in.TotalCharges
	}
	return invalidates
}

// Update edits a draft claim. Editing codes, procedures, or insurance resets
// the scrub status and forces a re-scrub before readiness.
func (s *Service) Update(ctx context.Context, actor auth.Identity, id uuid.UUID, in *UpdateInput) (*Claim, error) {
	c, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !c.IsEditable() {
		return nil, apperror.BadRequest("claim %s is %s and can no longer be edited", c.ClaimNumber, c.Status)
	}

	if in.apply(c) {
		c.ResetScrubbing()
		c.Status = StatusDraft
	}
	c.UpdatedBy = actor.UserID

	if err := s.update(ctx, c); err != nil {
		return nil, err
	}
	s.record(ctx, "claim.updated", c, actor, nil)
	return c, nil
}

// update persists the claim, translating a lost optimistic race into a
// caller-visible conflict.
func (s *Service) update(ctx context.Context, c *Claim) error {
	err := s.claims.Update(ctx, c)
	if errors.Is(err, ErrVersionConflict) {
		return apperror.BadRequest("claim %s was modified concurrently, reload and retry", c.ClaimNumber)
	}
	return err
}

// Delete removes a draft claim. Anything further along is immutable history.
func (s *Service) Delete(ctx context.Context, actor auth.Identity, id uuid.UUID) error {
	c, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if c.Status != StatusDraft {
		return apperror.BadRequest("only draft claims can be deleted; claim %s is %s", c.ClaimNumber, c.Status)
	}
	if err := s.claims.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "claim.deleted", c, actor, nil)
	return nil
}

// List returns claims visible to the actor, newest first.
func (s *Service) List(ctx context.Context, actor auth.Identity, f Filter) ([]*Claim, int, error) {
	scoped, err := s.scopeFilter(actor, f)
	if err != nil {
		return nil, 0, err
	}
	return s.claims.List(ctx, scoped)
}

// ScrubOutcome is one scrub run's effect on a claim.
type ScrubOutcome struct {
	Claim  *Claim              `json:"claim"`
	Report *scrubreport.Report `json:"report"`
	Diff   scrubreport.Diff    `json:"diff"`
}

func scrubStatusOf(s scrub.Status) ScrubStatus {
	switch s {
	case scrub.StatusPass:
		return ScrubPass
	case scrub.StatusPassWithWarnings:
		return ScrubPassWithWarnings
	case scrub.StatusFixed:
		return ScrubFixed
	default:
		return ScrubFail
	}
}

// RunScrub evaluates the claim, appends an immutable report chained to the
// previous one, and updates the claim's scrubbing bookkeeping. A passing
// result promotes a draft to ready; a failing one leaves status alone.
func (s *Service) RunScrub(ctx context.Context, actor auth.Identity, id uuid.UUID, opts scrub.Options) (*ScrubOutcome, error) {
	c, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !c.IsPreSubmission() {
		return nil, apperror.BadRequest("claim %s is %s and can no longer be scrubbed", c.ClaimNumber, c.Status)
	}

	res := s.engine.Scrub(c.Snapshot(), opts)

	var previous *scrubreport.Report
	if c.Scrubbing.LatestReportID != nil {
		// Best-effort: a missing previous report only degrades the diff.
		previous, _ = s.reports.GetByID(ctx, *c.Scrubbing.LatestReportID)
	}

	now := s.now()
	report := scrubreport.FromResult(c.ID, c.ClaimNumber, res, opts, actor.UserID, now)
	report.PreviousReportID = c.Scrubbing.LatestReportID
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("persist scrub report: %w", err)
	}

	if opts.AutoFix && len(res.FixedIssues) > 0 {
		c.ApplySnapshot(res.Claim)
	}
	c.Scrubbing = ScrubInfo{
		LastScrubDate:  &now,
		Status:         scrubStatusOf(res.Status),
		ErrorCount:     res.Summary.Errors,
		WarningCount:   res.Summary.Warnings,
		AutoFixedCount: res.Summary.AutoFixed,
		LatestReportID: &report.ID,
	}
	if res.Status != scrub.StatusFail {
		c.Status = StatusReady
	}
	c.UpdatedBy = actor.UserID

	if err := s.update(ctx, c); err != nil {
		return nil, err
	}
	s.record(ctx, "claim.scrubbed", c, actor, map[string]interface{}{
		"scrub_status": res.Status,
		"errors":       res.Summary.Errors,
		"warnings":     res.Summary.Warnings,
		"auto_fixed":   res.Summary.AutoFixed,
		"report_id":    report.ID.String(),
	})

	return &ScrubOutcome{
		Claim:  c,
		Report: report,
		Diff:   scrubreport.DiffReports(previous, report),
	}, nil
}

// AutoFix applies every fixable rule's transform without a full scrub run.
// It is an edit, so the scrub status resets and the claim must be
// re-scrubbed before submission.
func (s *Service) AutoFix(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Claim, *scrub.FixOutcome, error) {
	c, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	if !c.IsEditable() {
		return nil, nil, apperror.BadRequest("claim %s is %s and can no longer be edited", c.ClaimNumber, c.Status)
	}

	out := s.engine.AutoFixAll(c.Snapshot())
	if out.FixedCount == 0 {
		return c, &out, nil
	}

	c.ApplySnapshot(out.Claim)
	c.ResetScrubbing()
	c.UpdatedBy = actor.UserID
	if err := s.update(ctx, c); err != nil {
		return nil, nil, err
	}
	s.record(ctx, "claim.auto_fixed", c, actor, map[string]interface{}{
		"fixed_count": out.FixedCount,
	})
	return c, &out, nil
}

// Submit freezes the claim and hands it to the payer. The claim must have a
// passing scrub on record; filing past the timely window is allowed but
// logged as a risk.
func (s *Service) Submit(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Claim, error) {
	c, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !c.IsReadyForSubmission() {
		return nil, apperror.BadRequest("claim %s is not ready for submission", c.ClaimNumber).
			WithDetails(
				fmt.Sprintf("status is %s", c.Status),
				fmt.Sprintf("scrub status is %s", c.Scrubbing.Status),
				fmt.Sprintf("%d scrub error(s) outstanding", c.Scrubbing.ErrorCount),
			)
	}

	now := s.now()
	if !c.IsWithinTimelyFiling(s.timelyFilingDays, now) {
		s.record(ctx, "claim.timely_filing_risk", c, actor, map[string]interface{}{
			"service_date": c.ServiceDate,
			"limit_days":   s.timelyFilingDays,
		})
	}

	c.Status = StatusSubmitted
	c.Submission = &SubmissionInfo{
		SubmittedBy:    actor.UserID,
		SubmittedAt:    now,
		TrackingNumber: s.tracking.Next(),
	}
	c.UpdatedBy = actor.UserID

	if err := s.update(ctx, c); err != nil {
		return nil, err
	}
	s.record(ctx, "claim.submitted", c, actor, map[string]interface{}{
		"tracking_number": c.Submission.TrackingNumber,
	})
	return c, nil
}

// Resubmit spawns a replacement draft carrying the supplied changes and a
// mandatory reason, linked to the original. The original claim is not
// mutated.
func (s *Service) Resubmit(ctx context.Context, actor auth.Identity, id uuid.UUID, reason string, changes *UpdateInput) (*Claim, error) {
	if reason == "" {
		return nil, apperror.BadRequest("resubmission reason is required")
	}
	original, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !original.CanResubmit() {
		return nil, apperror.BadRequest("claim %s is %s; only submitted, denied, or appealed claims can be resubmitted",
			original.ClaimNumber, original.Status)
	}

	replacement := &Claim{
		PatientID:          original.PatientID,
		ProviderID:         original.ProviderID,
		PayerID:            original.PayerID,
		InsuranceType:      original.InsuranceType,
		PolicyNumber:       original.PolicyNumber,
		GroupNumber:        original.GroupNumber,
		ServiceDate:        original.ServiceDate,
		DiagnosisCodes:     append([]string(nil), original.DiagnosisCodes...),
		Procedures:         append([]ProcedureLine(nil), original.Procedures...),
		TotalCharges:       original.TotalCharges,
		Status:             StatusDraft,
		Scrubbing:          ScrubInfo{Status: ScrubNotScrubbed},
		ResubmissionOf:     &original.ID,
		ResubmissionReason: reason,
		CreatedBy:          actor.UserID,
		UpdatedBy:          actor.UserID,
	}
	if changes != nil {
		changes.apply(replacement)
	}

	now := s.now()
	seq, err := s.claims.NextSequence(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("assign claim number: %w", err)
	}
	replacement.ClaimNumber = FormatClaimNumber(now, seq)

	if err := s.claims.Create(ctx, replacement); err != nil {
		return nil, fmt.Errorf("create replacement claim: %w", err)
	}
	s.record(ctx, "claim.resubmitted", replacement, actor, map[string]interface{}{
		"original_claim_id":     original.ID.String(),
		"original_claim_number": original.ClaimNumber,
		"reason":                reason,
	})
	return replacement, nil
}

// BatchScrubItem is the per-claim outcome of a batch run.
type BatchScrubItem struct {
	ClaimID     uuid.UUID    `json:"claim_id"`
	ClaimNumber string       `json:"claim_number,omitempty"`
	Status      scrub.Status `json:"status,omitempty"`
	Summary     scrub.Summary `json:"summary"`
	ReportID    *uuid.UUID   `json:"report_id,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// BatchScrubResult aggregates a batch run with per-item isolation.
type BatchScrubResult struct {
	Items    []BatchScrubItem `json:"items"`
	Summary  scrub.Summary    `json:"summary"`
	Scrubbed int              `json:"scrubbed"`
	Failed   int              `json:"failed"`
}

// BatchScrub evaluates many claims in parallel and persists one report plus
// one claim update per input. One claim's failure never aborts its siblings.
func (s *Service) BatchScrub(ctx context.Context, actor auth.Identity, ids []uuid.UUID, opts scrub.Options) (*BatchScrubResult, error) {
	if len(ids) == 0 {
		return nil, apperror.BadRequest("batch scrub needs at least one claim id")
	}

	out := &BatchScrubResult{Items: make([]BatchScrubItem, len(ids))}

	loaded := make([]*Claim, len(ids))
	var snapshots []scrub.Claim
	var snapshotIdx []int
	for i, id := range ids {
		out.Items[i].ClaimID = id
		c, err := s.Get(ctx, actor, id)
		if err != nil {
			out.Items[i].Error = err.Error()
			out.Failed++
			continue
		}
		if !c.IsPreSubmission() {
			out.Items[i].Error = fmt.Sprintf("claim %s is %s and can no longer be scrubbed", c.ClaimNumber, c.Status)
			out.Items[i].ClaimNumber = c.ClaimNumber
			out.Failed++
			continue
		}
		loaded[i] = c
		out.Items[i].ClaimNumber = c.ClaimNumber
		snapshots = append(snapshots, c.Snapshot())
		snapshotIdx = append(snapshotIdx, i)
	}

	batch := s.engine.ScrubBatch(ctx, snapshots, opts, s.batchWorkers)

	for bi, item := range batch.Results {
		i := snapshotIdx[bi]
		c := loaded[i]
		if item.Error != "" {
			out.Items[i].Error = item.Error
			out.Failed++
			continue
		}
		res := item.Result
		if err := s.persistScrub(ctx, actor, c, res, opts, &out.Items[i]); err != nil {
			out.Items[i].Error = err.Error()
			out.Failed++
			continue
		}
		out.Summary.Add(res.Summary)
		out.Scrubbed++
	}
	return out, nil
}

// persistScrub stores one batch item's report and claim update.
func (s *Service) persistScrub(ctx context.Context, actor auth.Identity, c *Claim, res scrub.Result, opts scrub.Options, item *BatchScrubItem) error {
	now := s.now()
	report := scrubreport.FromResult(c.ID, c.ClaimNumber, res, opts, actor.UserID, now)
	report.PreviousReportID = c.Scrubbing.LatestReportID
	if err := s.reports.Create(ctx, report); err != nil {
		return fmt.Errorf("persist scrub report: %w", err)
	}

	if opts.AutoFix && len(res.FixedIssues) > 0 {
		c.ApplySnapshot(res.Claim)
	}
	c.Scrubbing = ScrubInfo{
		LastScrubDate:  &now,
		Status:         scrubStatusOf(res.Status),
		ErrorCount:     res.Summary.Errors,
		WarningCount:   res.Summary.Warnings,
		AutoFixedCount: res.Summary.AutoFixed,
		LatestReportID: &report.ID,
	}
	if res.Status != scrub.StatusFail {
		c.Status = StatusReady
	}
	c.UpdatedBy = actor.UserID
	if err := s.update(ctx, c); err != nil {
		return err
	}

	item.Status = res.Status
	item.Summary = res.Summary
	item.ReportID = &report.ID
	return nil
}

// StatsOverview aggregates the claim inventory for the dashboard.
func (s *Service) StatsOverview(ctx context.Context, actor auth.Identity, from, to *time.Time) (*StatsOverview, error) {
	return s.claims.Stats(ctx, from, to)
}

// ListReports returns a claim's scrub history, newest first.
func (s *Service) ListReports(ctx context.Context, actor auth.Identity, claimID uuid.UUID, limit, offset int) ([]*scrubreport.Report, int, error) {
	if _, err := s.Get(ctx, actor, claimID); err != nil {
		return nil, 0, err
	}
	return s.reports.ListByClaim(ctx, claimID, limit, offset)
}

// ReportDetail is a report plus its diff against the previous run.
type ReportDetail struct {
	Report *scrubreport.Report `json:"report"`
	Diff   scrubreport.Diff    `json:"diff"`
}

// GetReport loads one report and diffs it against its predecessor.
func (s *Service) GetReport(ctx context.Context, actor auth.Identity, reportID uuid.UUID) (*ReportDetail, error) {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, actor, report.ClaimID); err != nil {
		return nil, err
	}

	var previous *scrubreport.Report
	if report.PreviousReportID != nil {
		previous, _ = s.reports.GetByID(ctx, *report.PreviousReportID)
	}
	return &ReportDetail{
		Report: report,
		Diff:   scrubreport.DiffReports(previous, report),
	}, nil
}
