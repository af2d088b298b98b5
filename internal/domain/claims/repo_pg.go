package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimwise/claimwise/internal/platform/apperror"
	"github.com/claimwise/claimwise/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the Postgres-backed claim store.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const claimCols = `id, claim_number, patient_id, provider_id, payer_id,
	insurance_type, policy_number, group_number,
	service_date, diagnosis_codes, procedures, total_charges, status,
	scrub_last_date, scrub_status, scrub_error_count, scrub_warning_count,
	scrub_auto_fixed_count, latest_report_id,
	submitted_by, submitted_at, tracking_number,
	resubmission_of, resubmission_reason,
	created_by, updated_by, version_id, created_at, updated_at`

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	var dx, procs []byte
	var submittedBy, trackingNumber *string
	var submittedAt *time.Time
	err := row.Scan(&c.ID, &c.ClaimNumber, &c.PatientID, &c.ProviderID, &c.PayerID,
		&c.InsuranceType, &c.PolicyNumber, &c.GroupNumber,
		&c.ServiceDate, &dx, &procs, &c.TotalCharges, &c.Status,
		&c.Scrubbing.LastScrubDate, &c.Scrubbing.Status, &c.Scrubbing.ErrorCount,
		&c.Scrubbing.WarningCount, &c.Scrubbing.AutoFixedCount, &c.Scrubbing.LatestReportID,
		&submittedBy, &submittedAt, &trackingNumber,
		&c.ResubmissionOf, &c.ResubmissionReason,
		&c.CreatedBy, &c.UpdatedBy, &c.VersionID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(dx, &c.DiagnosisCodes); err != nil {
		return nil, fmt.Errorf("unmarshal diagnosis codes: %w", err)
	}
	if err := json.Unmarshal(procs, &c.Procedures); err != nil {
		return nil, fmt.Errorf("unmarshal procedures: %w", err)
	}
	if submittedBy != nil && submittedAt != nil && trackingNumber != nil {
		c.Submission = &SubmissionInfo{
			SubmittedBy:    *submittedBy,
			SubmittedAt:    *submittedAt,
			TrackingNumber: *trackingNumber,
		}
	}
	return &c, nil
}

func marshalLines(c *Claim) (dx []byte, procs []byte, err error) {
	if dx, err = json.Marshal(c.DiagnosisCodes); err != nil {
		return nil, nil, fmt.Errorf("marshal diagnosis codes: %w", err)
	}
	if procs, err = json.Marshal(c.Procedures); err != nil {
		return nil, nil, fmt.Errorf("marshal procedures: %w", err)
	}
	return dx, procs, nil
}

func submissionFields(c *Claim) (by *string, at *time.Time, tracking *string) {
	if c.Submission == nil {
		return nil, nil, nil
	}
	return &c.Submission.SubmittedBy, &c.Submission.SubmittedAt, &c.Submission.TrackingNumber
}

func (r *repoPG) Create(ctx context.Context, c *Claim) error {
	c.ID = uuid.New()
	c.VersionID = 1
	dx, procs, err := marshalLines(c)
	if err != nil {
		return err
	}
	by, at, tracking := submissionFields(c)
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO claims (id, claim_number, patient_id, provider_id, payer_id,
			insurance_type, policy_number, group_number,
			service_date, diagnosis_codes, procedures, total_charges, status,
			scrub_last_date, scrub_status, scrub_error_count, scrub_warning_count,
			scrub_auto_fixed_count, latest_report_id,
			submitted_by, submitted_at, tracking_number,
			resubmission_of, resubmission_reason,
			created_by, updated_by, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,
			$20,$21,$22,$23,$24,$25,$26,$27)`,
		c.ID, c.ClaimNumber, c.PatientID, c.ProviderID, c.PayerID,
		c.InsuranceType, c.PolicyNumber, c.GroupNumber,
		c.ServiceDate, dx, procs, c.TotalCharges, c.Status,
		c.Scrubbing.LastScrubDate, c.Scrubbing.Status, c.Scrubbing.ErrorCount,
		c.Scrubbing.WarningCount, c.Scrubbing.AutoFixedCount, c.Scrubbing.LatestReportID,
		by, at, tracking,
		c.ResubmissionOf, c.ResubmissionReason,
		c.CreatedBy, c.UpdatedBy, c.VersionID)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM claims WHERE id = $1`, id)
	c, err := scanClaim(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("claim %s not found", id)
	}
	return c, err
}

// Update matches on version_id; zero rows affected means a concurrent writer
// won and the caller gets ErrVersionConflict.
func (r *repoPG) Update(ctx context.Context, c *Claim) error {
	dx, procs, err := marshalLines(c)
	if err != nil {
		return err
	}
	by, at, tracking := submissionFields(c)
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE claims SET
			patient_id = $2, provider_id = $3, payer_id = $4,
			insurance_type = $5, policy_number = $6, group_number = $7,
			service_date = $8, diagnosis_codes = $9, procedures = $10,
			total_charges = $11, status = $12,
			scrub_last_date = $13, scrub_status = $14, scrub_error_count = $15,
			scrub_warning_count = $16, scrub_auto_fixed_count = $17, latest_report_id = $18,
			submitted_by = $19, submitted_at = $20, tracking_number = $21,
			updated_by = $22, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $23`,
		c.ID, c.PatientID, c.ProviderID, c.PayerID,
		c.InsuranceType, c.PolicyNumber, c.GroupNumber,
		c.ServiceDate, dx, procs,
		c.TotalCharges, c.Status,
		c.Scrubbing.LastScrubDate, c.Scrubbing.Status, c.Scrubbing.ErrorCount,
		c.Scrubbing.WarningCount, c.Scrubbing.AutoFixedCount, c.Scrubbing.LatestReportID,
		by, at, tracking,
		c.UpdatedBy, c.VersionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	c.VersionID++
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM claims WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("claim %s not found", id)
	}
	return nil
}

func (f Filter) where() (string, []interface{}) {
	clause := ` WHERE 1=1`
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		clause += fmt.Sprintf(cond, len(args))
	}
	if f.Status != nil {
		add(` AND status = $%d`, *f.Status)
	}
	if f.ScrubStatus != nil {
		add(` AND scrub_status = $%d`, *f.ScrubStatus)
	}
	if f.PatientID != nil {
		add(` AND patient_id = $%d`, *f.PatientID)
	}
	if f.ProviderID != nil {
		add(` AND provider_id = $%d`, *f.ProviderID)
	}
	if f.PayerID != nil {
		add(` AND payer_id = $%d`, *f.PayerID)
	}
	if f.ServiceFrom != nil {
		add(` AND service_date >= $%d`, *f.ServiceFrom)
	}
	if f.ServiceTo != nil {
		add(` AND service_date <= $%d`, *f.ServiceTo)
	}
	return clause, args
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*Claim, int, error) {
	clause, args := f.where()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claims`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + claimCols + ` FROM claims` + clause +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// NextSequence advances the per-day counter atomically via upsert, replacing
// the race-prone "count documents this period" approach.
func (r *repoPG) NextSequence(ctx context.Context, day time.Time) (int64, error) {
	var seq int64
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO claim_number_seq (day, value) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET value = claim_number_seq.value + 1
		RETURNING value`,
		day.UTC().Format("2006-01-02")).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("advance claim number sequence: %w", err)
	}
	return seq, nil
}

func (r *repoPG) Stats(ctx context.Context, from, to *time.Time) (*StatsOverview, error) {
	clause := ` WHERE 1=1`
	var args []interface{}
	if from != nil {
		args = append(args, *from)
		clause += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if to != nil {
		args = append(args, *to)
		clause += fmt.Sprintf(` AND created_at <= $%d`, len(args))
	}

	stats := &StatsOverview{}
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(total_charges), 0) FROM claims`+clause, args...).
		Scan(&stats.Total, &stats.AverageCharges)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT status, COUNT(*) FROM claims`+clause+` GROUP BY status ORDER BY status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		stats.ByStatus = append(stats.ByStatus, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	scrubRows, err := r.conn(ctx).Query(ctx,
		`SELECT scrub_status, COUNT(*) FROM claims`+clause+` GROUP BY scrub_status ORDER BY scrub_status`, args...)
	if err != nil {
		return nil, err
	}
	defer scrubRows.Close()
	for scrubRows.Next() {
		var sc ScrubStatusCount
		if err := scrubRows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		stats.ByScrubStatus = append(stats.ByScrubStatus, sc)
	}
	if err := scrubRows.Err(); err != nil {
		return nil, err
	}

	err = r.conn(ctx).QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('draft','ready')
				AND scrub_status IN ('pass','pass_with_warnings','fixed')),
			COUNT(*) FILTER (WHERE status = 'draft'
				AND scrub_status IN ('not_scrubbed','fail'))
		FROM claims`+clause, args...).
		Scan(&stats.ReadyToSubmit, &stats.NeedingScrubbing)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
