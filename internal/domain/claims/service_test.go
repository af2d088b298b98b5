package claims

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claimwise/claimwise/internal/domain/scrubreport"
	"github.com/claimwise/claimwise/internal/platform/apperror"
	"github.com/claimwise/claimwise/internal/platform/audit"
	"github.com/claimwise/claimwise/internal/platform/auth"
	"github.com/claimwise/claimwise/internal/scrub"
)

// -- Mock Repositories --

type mockClaimRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Claim
	seq   map[string]int64

	// updateErr is returned by the next Update call, then cleared.
	updateErr error
}

func newMockClaimRepo() *mockClaimRepo {
	return &mockClaimRepo{
		items: make(map[uuid.UUID]*Claim),
		seq:   make(map[string]int64),
	}
}

func (m *mockClaimRepo) Create(_ context.Context, c *Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New()
	c.VersionID = 1
	c.CreatedAt = time.Now()
	c.UpdatedAt = time.Now()
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockClaimRepo) GetByID(_ context.Context, id uuid.UUID) (*Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, apperror.NotFound("claim %s not found", id)
	}
	cp := *c
	return &cp, nil
}

func (m *mockClaimRepo) Update(_ context.Context, c *Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		err := m.updateErr
		m.updateErr = nil
		return err
	}
	stored, ok := m.items[c.ID]
	if !ok {
		return apperror.NotFound("claim %s not found", c.ID)
	}
	if stored.VersionID != c.VersionID {
		return ErrVersionConflict
	}
	c.VersionID++
	c.UpdatedAt = time.Now()
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockClaimRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return apperror.NotFound("claim %s not found", id)
	}
	delete(m.items, id)
	return nil
}

func (m *mockClaimRepo) List(_ context.Context, f Filter) ([]*Claim, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Claim
	for _, c := range m.items {
		if f.PatientID != nil && c.PatientID != *f.PatientID {
			continue
		}
		if f.ProviderID != nil && c.ProviderID != *f.ProviderID {
			continue
		}
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockClaimRepo) NextSequence(_ context.Context, day time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := day.UTC().Format("2006-01-02")
	m.seq[key]++
	return m.seq[key], nil
}

func (m *mockClaimRepo) Stats(_ context.Context, _, _ *time.Time) (*StatsOverview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &StatsOverview{Total: len(m.items)}
	byStatus := map[Status]int{}
	for _, c := range m.items {
		byStatus[c.Status]++
		if c.IsReadyForSubmission() {
			stats.ReadyToSubmit++
		}
	}
	for s, n := range byStatus {
		stats.ByStatus = append(stats.ByStatus, StatusCount{Status: s, Count: n})
	}
	return stats, nil
}

type mockReportRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*scrubreport.Report
	order []uuid.UUID
}

func newMockReportRepo() *mockReportRepo {
	return &mockReportRepo{items: make(map[uuid.UUID]*scrubreport.Report)}
}

func (m *mockReportRepo) Create(_ context.Context, r *scrubreport.Report) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	cp := *r
	m.items[r.ID] = &cp
	m.order = append(m.order, r.ID)
	return nil
}

func (m *mockReportRepo) GetByID(_ context.Context, id uuid.UUID) (*scrubreport.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return nil, apperror.NotFound("scrub report %s not found", id)
	}
	cp := *r
	return &cp, nil
}

func (m *mockReportRepo) ListByClaim(_ context.Context, claimID uuid.UUID, _, _ int) ([]*scrubreport.Report, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*scrubreport.Report
	// Newest first, like the store.
	for i := len(m.order) - 1; i >= 0; i-- {
		r := m.items[m.order[i]]
		if r.ClaimID == claimID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

// captureRecorder keeps emitted audit events for assertions.
type captureRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *captureRecorder) Record(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *captureRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Event)
	}
	return out
}

// -- Fixtures --

var (
	testPatient  = uuid.New()
	testProvider = uuid.New()
	testPayer    = uuid.New()

	billingActor = auth.Identity{UserID: "user-billing", Role: auth.RoleBilling}
	adminActor   = auth.Identity{UserID: "user-admin", Role: auth.RoleAdmin}
	patientActor = auth.Identity{UserID: "user-patient", Role: auth.RolePatient, PatientID: &testPatient}
)

func newTestService(t *testing.T) (*Service, *mockClaimRepo, *mockReportRepo, *captureRecorder) {
	t.Helper()
	engine, err := scrub.NewEngine(scrub.Config{})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	claimRepo := newMockClaimRepo()
	reportRepo := newMockReportRepo()
	rec := &captureRecorder{}
	svc := NewService(claimRepo, reportRepo, engine)
	svc.SetAuditRecorder(rec)
	return svc, claimRepo, reportRepo, rec
}

func cleanInput() *CreateInput {
	return &CreateInput{
		PatientID:     testPatient,
		ProviderID:    testProvider,
		PayerID:       &testPayer,
		InsuranceType: "commercial",
		PolicyNumber:  "POL-12345",
		GroupNumber:   "GRP-1",
		ServiceDate:   time.Now().AddDate(0, 0, -10),
		DiagnosisCodes: []string{"E11.9", "I10"},
		Procedures: []ProcedureLine{
			{Code: "99213", Quantity: 1, UnitCharge: 125},
			{Code: "36415", Quantity: 1, UnitCharge: 25},
		},
		TotalCharges: 150,
	}
}

func mustCreate(t *testing.T, svc *Service) *Claim {
	t.Helper()
	c, err := svc.Create(context.Background(), billingActor, cleanInput())
	if err != nil {
		t.Fatalf("failed to create claim: %v", err)
	}
	return c
}

func mustScrub(t *testing.T, svc *Service, id uuid.UUID) *ScrubOutcome {
	t.Helper()
	out, err := svc.RunScrub(context.Background(), billingActor, id, scrub.Options{})
	if err != nil {
		t.Fatalf("failed to scrub claim: %v", err)
	}
	return out
}

// -- Create --

func TestService_Create(t *testing.T) {
	svc, _, _, rec := newTestService(t)

	c := mustCreate(t, svc)

	if c.Status != StatusDraft {
		t.Errorf("expected draft, got %s", c.Status)
	}
	if c.Scrubbing.Status != ScrubNotScrubbed {
		t.Errorf("expected not_scrubbed, got %s", c.Scrubbing.Status)
	}
	wantPrefix := "CLM-" + time.Now().UTC().Format("20060102") + "-"
	if !strings.HasPrefix(c.ClaimNumber, wantPrefix) {
		t.Errorf("claim number %q missing prefix %q", c.ClaimNumber, wantPrefix)
	}
	if c.CreatedBy != billingActor.UserID {
		t.Errorf("expected created_by %q, got %q", billingActor.UserID, c.CreatedBy)
	}
	if names := rec.names(); len(names) != 1 || names[0] != "claim.created" {
		t.Errorf("expected [claim.created] audit trail, got %v", names)
	}
}

func TestService_Create_SequentialNumbers(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	a := mustCreate(t, svc)
	b := mustCreate(t, svc)

	if a.ClaimNumber == b.ClaimNumber {
		t.Errorf("expected distinct claim numbers, both %q", a.ClaimNumber)
	}
	if !(a.ClaimNumber < b.ClaimNumber) {
		t.Errorf("expected %q < %q", a.ClaimNumber, b.ClaimNumber)
	}
}

func TestService_Create_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	in := cleanInput()
	in.PatientID = uuid.Nil
	if _, err := svc.Create(ctx, billingActor, in); !apperror.IsBadRequest(err) {
		t.Errorf("expected bad request for missing patient, got %v", err)
	}

	in = cleanInput()
	in.DiagnosisCodes = nil
	in.Procedures = nil
	if _, err := svc.Create(ctx, billingActor, in); !apperror.IsBadRequest(err) {
		t.Errorf("expected bad request for empty claim, got %v", err)
	}
}

func TestService_Create_PatientScope(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	in := cleanInput()
	in.PatientID = uuid.New() // someone else's chart
	_, err := svc.Create(context.Background(), patientActor, in)
	if !apperror.IsForbidden(err) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

// -- Get / Update / Delete --

func TestService_Get_RowLevelAccess(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	c := mustCreate(t, svc)

	// The owning patient can read it.
	if _, err := svc.Get(ctx, patientActor, c.ID); err != nil {
		t.Errorf("owner read failed: %v", err)
	}

	// A different patient cannot.
	other := uuid.New()
	stranger := auth.Identity{UserID: "user-other", Role: auth.RolePatient, PatientID: &other}
	if _, err := svc.Get(ctx, stranger, c.ID); !apperror.IsForbidden(err) {
		t.Errorf("expected forbidden for stranger, got %v", err)
	}

	// Admin reads anything.
	if _, err := svc.Get(ctx, adminActor, c.ID); err != nil {
		t.Errorf("admin read failed: %v", err)
	}
}

func TestService_Update_ResetsScrubOnBillingEdit(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	// A failing scrub leaves the claim draft and editable.
	in := cleanInput()
	in.TotalCharges = 300
	c, err := svc.Create(ctx, billingActor, in)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	out := mustScrub(t, svc, c.ID)
	if out.Report.Status != scrub.StatusFail {
		t.Fatalf("expected fail, got %s", out.Report.Status)
	}

	dx := []string{"E11.9"}
	updated, err := svc.Update(ctx, billingActor, c.ID, &UpdateInput{DiagnosisCodes: &dx})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Scrubbing.Status != ScrubNotScrubbed {
		t.Errorf("expected scrub reset after diagnosis edit, got %s", updated.Scrubbing.Status)
	}
	if updated.Scrubbing.LatestReportID != nil {
		t.Error("expected the stale report pointer cleared")
	}
}

func TestService_Update_RejectsNonDraft(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	c := mustCreate(t, svc)
	mustScrub(t, svc, c.ID)
	if _, err := svc.Submit(ctx, billingActor, c.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	charges := 200.0
	_, err := svc.Update(ctx, billingActor, c.ID, &UpdateInput{TotalCharges: &charges})
	if !apperror.IsBadRequest(err) {
		t.Errorf("expected bad request editing a submitted claim, got %v", err)
	}
}

func TestService_Delete_DraftOnly(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	draft := mustCreate(t, svc)
	if err := svc.Delete(ctx, billingActor, draft.ID); err != nil {
		t.Fatalf("expected draft delete to succeed, got %v", err)
	}

	c := mustCreate(t, svc)
	mustScrub(t, svc, c.ID)
	if _, err := svc.Submit(ctx, billingActor, c.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := svc.Delete(ctx, billingActor, c.ID); !apperror.IsBadRequest(err) {
		t.Errorf("expected bad request deleting a submitted claim, got %v", err)
	}
}

// -- Scrubbing --

func TestService_RunScrub_PromotesCleanClaim(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	out := mustScrub(t, svc, mustCreate(t, svc).ID)

	if out.Report.Status != scrub.StatusPass {
		t.Fatalf("expected pass, got %s (errors: %v)", out.Report.Status, out.Report.Errors)
	}
	if out.Claim.Status != StatusReady {
		t.Errorf("expected claim promoted to ready, got %s", out.Claim.Status)
	}
	if out.Claim.Scrubbing.Status != ScrubPass {
		t.Errorf("expected scrub status pass, got %s", out.Claim.Scrubbing.Status)
	}
	if out.Claim.Scrubbing.LatestReportID == nil || *out.Claim.Scrubbing.LatestReportID != out.Report.ID {
		t.Error("expected claim to point at the new report")
	}
	if out.Report.PreviousReportID != nil {
		t.Error("first report should have no predecessor")
	}
}

func TestService_RunScrub_FailingClaimStaysDraft(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	in := cleanInput()
	in.DiagnosisCodes = nil // diagnosis-required is a hard error
	c, err := svc.Create(context.Background(), billingActor, in)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	out := mustScrub(t, svc, c.ID)
	if out.Report.Status != scrub.StatusFail {
		t.Fatalf("expected fail, got %s", out.Report.Status)
	}
	if out.Claim.Status != StatusDraft {
		t.Errorf("expected claim to stay draft, got %s", out.Claim.Status)
	}
	if out.Claim.Scrubbing.ErrorCount == 0 {
		t.Error("expected error count recorded on the claim")
	}
}

func TestService_RunScrub_ChainsReports(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	c := mustCreate(t, svc)

	first := mustScrub(t, svc, c.ID)
	second := mustScrub(t, svc, c.ID)

	if second.Report.PreviousReportID == nil || *second.Report.PreviousReportID != first.Report.ID {
		t.Error("expected second report chained to the first")
	}
	if len(second.Diff.New) != 0 || len(second.Diff.Resolved) != 0 {
		t.Errorf("unchanged claim should have an empty diff, got new=%d resolved=%d",
			len(second.Diff.New), len(second.Diff.Resolved))
	}
}

func TestService_RunScrub_RejectsSubmitted(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	c := mustCreate(t, svc)
	mustScrub(t, svc, c.ID)
	if _, err := svc.Submit(ctx, billingActor, c.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, err := svc.RunScrub(ctx, billingActor, c.ID, scrub.Options{})
	if !apperror.IsBadRequest(err) {
		t.Errorf("expected bad request scrubbing a submitted claim, got %v", err)
	}
}

func TestService_RunScrub_AutoFixPersistsRepairs(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	in := cleanInput()
	in.TotalCharges = 300 // line total is 150
	c, err := svc.Create(context.Background(), billingActor, in)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	out, err := svc.RunScrub(context.Background(), billingActor, c.ID, scrub.Options{AutoFix: true})
	if err != nil {
		t.Fatalf("scrub failed: %v", err)
	}
	if out.Report.Status != scrub.StatusFixed {
		t.Fatalf("expected fixed, got %s", out.Report.Status)
	}

	stored, err := repo.GetByID(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if stored.TotalCharges != 150 {
		t.Errorf("expected repaired total 150 persisted, got %v", stored.TotalCharges)
	}
	if stored.Scrubbing.AutoFixedCount == 0 {
		t.Error("expected auto-fixed count recorded")
	}
}

func TestService_AutoFix_IsAnEditAndResetsScrub(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	in := cleanInput()
	in.TotalCharges = 300
	c, err := svc.Create(context.Background(), billingActor, in)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	claim, out, err := svc.AutoFix(context.Background(), billingActor, c.ID)
	if err != nil {
		t.Fatalf("autofix failed: %v", err)
	}
	if out.FixedCount == 0 {
		t.Fatal("expected at least one fix")
	}
	if claim.TotalCharges != 150 {
		t.Errorf("expected total repaired to 150, got %v", claim.TotalCharges)
	}
	if claim.Scrubbing.Status != ScrubNotScrubbed {
		t.Errorf("autofix is an edit: expected scrub reset, got %s", claim.Scrubbing.Status)
	}

	stored, _ := repo.GetByID(context.Background(), c.ID)
	if stored.TotalCharges != 150 {
		t.Errorf("expected repair persisted, got %v", stored.TotalCharges)
	}
}

// -- Submission --

func TestService_Submit_RequiresPassingScrub(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	c := mustCreate(t, svc)

	_, err := svc.Submit(context.Background(), billingActor, c.ID)
	if !apperror.IsBadRequest(err) {
		t.Fatalf("expected bad request submitting an unscrubbed claim, got %v", err)
	}
}

func TestService_Submit(t *testing.T) {
	svc, _, _, rec := newTestService(t)
	ctx := context.Background()
	c := mustCreate(t, svc)
	mustScrub(t, svc, c.ID)

	submitted, err := svc.Submit(ctx, billingActor, c.ID)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if submitted.Status != StatusSubmitted {
		t.Errorf("expected submitted, got %s", submitted.Status)
	}
	if submitted.Submission == nil {
		t.Fatal("expected submission info")
	}
	if !strings.HasPrefix(submitted.Submission.TrackingNumber, "TRK-") {
		t.Errorf("unexpected tracking number %q", submitted.Submission.TrackingNumber)
	}
	if submitted.Submission.SubmittedBy != billingActor.UserID {
		t.Errorf("expected submitted_by %q, got %q", billingActor.UserID, submitted.Submission.SubmittedBy)
	}

	names := rec.names()
	if names[len(names)-1] != "claim.submitted" {
		t.Errorf("expected claim.submitted audit event, got %v", names)
	}
}

func TestService_Submit_PastTimelyFilingLogsRisk(t *testing.T) {
	svc, repo, _, rec := newTestService(t)
	ctx := context.Background()
	c := mustCreate(t, svc)
	mustScrub(t, svc, c.ID)

	// Age the stored claim past the filing window without re-scrubbing.
	stored, _ := repo.GetByID(ctx, c.ID)
	stored.ServiceDate = time.Now().AddDate(0, 0, -400)
	repo.items[stored.ID] = stored

	if _, err := svc.Submit(ctx, billingActor, c.ID); err != nil {
		t.Fatalf("late submission should still succeed, got %v", err)
	}

	var sawRisk bool
	for _, name := range rec.names() {
		if name == "claim.timely_filing_risk" {
			sawRisk = true
		}
	}
	if !sawRisk {
		t.Error("expected a timely filing risk audit event")
	}
}

func TestService_VersionConflict_SurfacesAsBadRequest(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()
	c := mustCreate(t, svc)

	repo.updateErr = ErrVersionConflict
	charges := 200.0
	_, err := svc.Update(ctx, billingActor, c.ID, &UpdateInput{TotalCharges: &charges})
	if !apperror.IsBadRequest(err) {
		t.Fatalf("expected bad request on a lost optimistic race, got %v", err)
	}
	if !strings.Contains(err.Error(), "concurrently") {
		t.Errorf("expected a concurrency hint in %q", err.Error())
	}
}

func TestService_Resubmit(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()
	c := mustCreate(t, svc)
	mustScrub(t, svc, c.ID)
	if _, err := svc.Submit(ctx, billingActor, c.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	charges := 175.0
	replacement, err := svc.Resubmit(ctx, billingActor, c.ID, "payer denied: wrong modifier", &UpdateInput{TotalCharges: &charges})
	if err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if replacement.Status != StatusDraft {
		t.Errorf("expected replacement to start as draft, got %s", replacement.Status)
	}
	if replacement.ResubmissionOf == nil || *replacement.ResubmissionOf != c.ID {
		t.Error("expected lineage back to the original claim")
	}
	if replacement.ClaimNumber == c.ClaimNumber {
		t.Error("expected a fresh claim number")
	}
	if replacement.TotalCharges != 175 {
		t.Errorf("expected corrections applied, got %v", replacement.TotalCharges)
	}
	if replacement.Scrubbing.Status != ScrubNotScrubbed {
		t.Errorf("expected replacement unscrubbed, got %s", replacement.Scrubbing.Status)
	}

	// The original is untouched.
	original, _ := repo.GetByID(ctx, c.ID)
	if original.Status != StatusSubmitted {
		t.Errorf("expected original to stay submitted, got %s", original.Status)
	}
}

func TestService_Resubmit_Guards(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	c := mustCreate(t, svc)

	if _, err := svc.Resubmit(ctx, billingActor, c.ID, "reason", nil); !apperror.IsBadRequest(err) {
		t.Errorf("expected bad request resubmitting a draft, got %v", err)
	}

	mustScrub(t, svc, c.ID)
	if _, err := svc.Submit(ctx, billingActor, c.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := svc.Resubmit(ctx, billingActor, c.ID, "", nil); !apperror.IsBadRequest(err) {
		t.Errorf("expected bad request for missing reason, got %v", err)
	}
}

// -- Batch --

func TestService_BatchScrub_IsolatesFailures(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	good := mustCreate(t, svc)
	missing := uuid.New()

	out, err := svc.BatchScrub(ctx, billingActor, []uuid.UUID{good.ID, missing}, scrub.Options{})
	if err != nil {
		t.Fatalf("batch scrub failed: %v", err)
	}
	if out.Scrubbed != 1 || out.Failed != 1 {
		t.Fatalf("expected 1 scrubbed and 1 failed, got %d/%d", out.Scrubbed, out.Failed)
	}
	if out.Items[0].ClaimID != good.ID || out.Items[0].Error != "" {
		t.Errorf("expected first item to succeed, got %+v", out.Items[0])
	}
	if out.Items[1].ClaimID != missing || out.Items[1].Error == "" {
		t.Errorf("expected second item to fail, got %+v", out.Items[1])
	}
	if out.Items[0].ReportID == nil {
		t.Error("expected a persisted report for the scrubbed claim")
	}
}

func TestService_BatchScrub_UpdatesEveryClaim(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	ids := []uuid.UUID{mustCreate(t, svc).ID, mustCreate(t, svc).ID, mustCreate(t, svc).ID}
	out, err := svc.BatchScrub(ctx, billingActor, ids, scrub.Options{})
	if err != nil {
		t.Fatalf("batch scrub failed: %v", err)
	}
	if out.Scrubbed != 3 {
		t.Fatalf("expected 3 scrubbed, got %d", out.Scrubbed)
	}
	for _, id := range ids {
		c, _ := repo.GetByID(ctx, id)
		if c.Scrubbing.Status != ScrubPass {
			t.Errorf("claim %s: expected pass, got %s", id, c.Scrubbing.Status)
		}
		if c.Status != StatusReady {
			t.Errorf("claim %s: expected ready, got %s", id, c.Status)
		}
	}
}

func TestService_BatchScrub_EmptyInput(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.BatchScrub(context.Background(), billingActor, nil, scrub.Options{})
	if !apperror.IsBadRequest(err) {
		t.Errorf("expected bad request for empty batch, got %v", err)
	}
}

// -- Listing and reports --

func TestService_List_ScopesByRole(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	mine := mustCreate(t, svc)
	other := cleanInput()
	other.PatientID = uuid.New()
	if _, err := svc.Create(ctx, billingActor, other); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	items, total, err := svc.List(ctx, patientActor, Filter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != mine.ID {
		t.Errorf("expected only the patient's own claim, got %d items", total)
	}

	_, total, err = svc.List(ctx, billingActor, Filter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 {
		t.Errorf("expected billing to see both claims, got %d", total)
	}
}

func TestService_GetReport_DiffsAgainstPredecessor(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	// Group number missing warns, charge mismatch errors: the claim fails
	// and stays an editable draft.
	in := cleanInput()
	in.GroupNumber = ""
	in.TotalCharges = 300
	c, err := svc.Create(ctx, billingActor, in)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first := mustScrub(t, svc, c.ID)
	if first.Report.Status != scrub.StatusFail {
		t.Fatalf("expected fail, got %s", first.Report.Status)
	}

	// A second run with auto-fix repairs the charge error in place; the
	// group warning persists and the chain stays intact.
	second, err := svc.RunScrub(ctx, billingActor, c.ID, scrub.Options{AutoFix: true})
	if err != nil {
		t.Fatalf("scrub failed: %v", err)
	}
	if second.Report.Status != scrub.StatusFixed {
		t.Fatalf("expected fixed, got %s", second.Report.Status)
	}
	if second.Report.PreviousReportID == nil || *second.Report.PreviousReportID != first.Report.ID {
		t.Fatal("expected the second report chained to the first")
	}

	detail, err := svc.GetReport(ctx, billingActor, second.Report.ID)
	if err != nil {
		t.Fatalf("get report failed: %v", err)
	}
	if len(detail.Diff.Resolved) != 1 {
		t.Errorf("expected the charge error resolved in the diff, got %+v", detail.Diff)
	}
	if len(detail.Diff.Persisting) != 1 {
		t.Errorf("expected the group warning persisting, got %+v", detail.Diff.Persisting)
	}
	if len(detail.Diff.New) != 0 {
		t.Errorf("expected no new issues, got %+v", detail.Diff.New)
	}

	reports, total, err := svc.ListReports(ctx, billingActor, c.ID, 10, 0)
	if err != nil {
		t.Fatalf("list reports failed: %v", err)
	}
	if total != 2 || len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", total)
	}
	if !reports[0].ScrubbedAt.Before(time.Now().Add(time.Minute)) {
		t.Error("unexpected scrubbed_at ordering")
	}
}

func TestService_Stats(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc)
	c := mustCreate(t, svc)
	mustScrub(t, svc, c.ID)

	stats, err := svc.StatsOverview(ctx, billingActor, nil, nil)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("expected 2 claims, got %d", stats.Total)
	}
	if stats.ReadyToSubmit != 1 {
		t.Errorf("expected 1 ready to submit, got %d", stats.ReadyToSubmit)
	}
}
