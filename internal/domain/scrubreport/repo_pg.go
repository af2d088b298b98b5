package scrubreport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimwise/claimwise/internal/platform/apperror"
	"github.com/claimwise/claimwise/internal/platform/db"
	"github.com/claimwise/claimwise/internal/scrub"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the Postgres-backed report store.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// payload is the JSONB envelope for the report's issue lists and run config.
// Everything that is not queried relationally lives here.
type payload struct {
	Errors          []scrub.Issue          `json:"errors"`
	Warnings        []scrub.Issue          `json:"warnings"`
	Info            []scrub.Issue          `json:"info"`
	FixedIssues     []scrub.FixedIssue     `json:"fixed_issues"`
	Categories      []scrub.CategoryCount  `json:"categories"`
	CategoryFilter  []scrub.Category       `json:"category_filter,omitempty"`
	Actions         []string               `json:"actions,omitempty"`
	Recommendations []scrub.Recommendation `json:"recommendations,omitempty"`
}

func (r *repoPG) Create(ctx context.Context, rep *Report) error {
	if err := rep.Validate(); err != nil {
		return err
	}
	rep.ID = uuid.New()

	body, err := json.Marshal(payload{
		Errors:          rep.Errors,
		Warnings:        rep.Warnings,
		Info:            rep.Info,
		FixedIssues:     rep.FixedIssues,
		Categories:      rep.Categories,
		CategoryFilter:  rep.CategoryFilter,
		Actions:         rep.Actions,
		Recommendations: rep.Recommendations,
	})
	if err != nil {
		return fmt.Errorf("marshal report payload: %w", err)
	}
	snapshot, err := json.Marshal(rep.ClaimSnapshot)
	if err != nil {
		return fmt.Errorf("marshal claim snapshot: %w", err)
	}

	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO scrub_reports (id, claim_id, claim_number, status,
			error_count, warning_count, info_count, auto_fixed_count,
			auto_fix, duration_ms, scrubbed_by, scrubbed_at,
			claim_snapshot, body, previous_report_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		rep.ID, rep.ClaimID, rep.ClaimNumber, rep.Status,
		rep.Summary.Errors, rep.Summary.Warnings, rep.Summary.Info, rep.Summary.AutoFixed,
		rep.AutoFix, rep.DurationMS, rep.ScrubbedBy, rep.ScrubbedAt,
		snapshot, body, rep.PreviousReportID)
	return err
}

const reportCols = `id, claim_id, claim_number, status,
	error_count, warning_count, info_count, auto_fixed_count,
	auto_fix, duration_ms, scrubbed_by, scrubbed_at,
	claim_snapshot, body, previous_report_id`

func scanReport(row pgx.Row) (*Report, error) {
	var rep Report
	var snapshot, body []byte
	err := row.Scan(&rep.ID, &rep.ClaimID, &rep.ClaimNumber, &rep.Status,
		&rep.Summary.Errors, &rep.Summary.Warnings, &rep.Summary.Info, &rep.Summary.AutoFixed,
		&rep.AutoFix, &rep.DurationMS, &rep.ScrubbedBy, &rep.ScrubbedAt,
		&snapshot, &body, &rep.PreviousReportID)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snapshot, &rep.ClaimSnapshot); err != nil {
		return nil, fmt.Errorf("unmarshal claim snapshot: %w", err)
	}
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("unmarshal report payload: %w", err)
	}
	rep.Errors = p.Errors
	rep.Warnings = p.Warnings
	rep.Info = p.Info
	rep.FixedIssues = p.FixedIssues
	rep.Categories = p.Categories
	rep.CategoryFilter = p.CategoryFilter
	rep.Actions = p.Actions
	rep.Recommendations = p.Recommendations
	return &rep, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+reportCols+` FROM scrub_reports WHERE id = $1`, id)
	rep, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("scrub report %s not found", id)
	}
	return rep, err
}

func (r *repoPG) ListByClaim(ctx context.Context, claimID uuid.UUID, limit, offset int) ([]*Report, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM scrub_reports WHERE claim_id = $1`, claimID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+reportCols+` FROM scrub_reports
		 WHERE claim_id = $1 ORDER BY scrubbed_at DESC LIMIT $2 OFFSET $3`,
		claimID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rep)
	}
	return out, total, rows.Err()
}
