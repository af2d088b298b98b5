package claims

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/claimwise/claimwise/internal/platform/apperror"
	"github.com/claimwise/claimwise/internal/platform/auth"
	"github.com/claimwise/claimwise/internal/scrub"
	"github.com/claimwise/claimwise/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints: every authenticated role; the service narrows rows.
	readGroup := api.Group("", auth.RequireRole("admin", "billing", "practitioner", "patient"))
	readGroup.GET("/claims", h.List)
	readGroup.GET("/claims/:id", h.Get)
	readGroup.GET("/claims/:id/reports", h.ListReports)
	readGroup.GET("/scrub-reports/:id", h.GetReport)

	// Write endpoints: billing staff and practitioners.
	writeGroup := api.Group("", auth.RequireRole("admin", "billing", "practitioner"))
	writeGroup.POST("/claims", h.Create)
	writeGroup.PUT("/claims/:id", h.Update)
	writeGroup.DELETE("/claims/:id", h.Delete)
	writeGroup.POST("/claims/:id/scrub", h.Scrub)
	writeGroup.POST("/claims/:id/autofix", h.AutoFix)

	// Submission and aggregate endpoints: billing staff only.
	billingGroup := api.Group("", auth.RequireRole("admin", "billing"))
	billingGroup.POST("/claims/:id/submit", h.Submit)
	billingGroup.POST("/claims/:id/resubmit", h.Resubmit)
	billingGroup.POST("/claims/batch-scrub", h.BatchScrub)
	billingGroup.GET("/claims/stats/overview", h.Stats)
}

// envelope is the response wrapper for successful calls. Errors go through
// the server's error handler and use the matching failure shape.
func respond(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperror.BadRequest("invalid id")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return apperror.BadRequest("invalid request body: %v", err)
	}
	ctx := c.Request().Context()
	claim, err := h.svc.Create(ctx, auth.FromContext(ctx), &in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, claim)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	claim, err := h.svc.Get(ctx, auth.FromContext(ctx), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, claim)
}

// listQuery decodes the optional list filters.
func listQuery(c echo.Context) (Filter, error) {
	var f Filter
	if v := c.QueryParam("status"); v != "" {
		st := Status(v)
		if !validStatuses[st] {
			return f, apperror.BadRequest("unknown status %q", v)
		}
		f.Status = &st
	}
	if v := c.QueryParam("scrub_status"); v != "" {
		ss := ScrubStatus(v)
		f.ScrubStatus = &ss
	}
	for param, dst := range map[string]**uuid.UUID{
		"patient_id":  &f.PatientID,
		"provider_id": &f.ProviderID,
		"payer_id":    &f.PayerID,
	} {
		if v := c.QueryParam(param); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return f, apperror.BadRequest("invalid %s", param)
			}
			*dst = &id
		}
	}
	for param, dst := range map[string]**time.Time{
		"service_from": &f.ServiceFrom,
		"service_to":   &f.ServiceTo,
	} {
		if v := c.QueryParam(param); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				return f, apperror.BadRequest("invalid %s, want YYYY-MM-DD", param)
			}
			*dst = &t
		}
	}
	return f, nil
}

func (h *Handler) List(c echo.Context) error {
	f, err := listQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	f.Limit, f.Offset = pg.Limit, pg.Offset

	ctx := c.Request().Context()
	items, total, err := h.svc.List(ctx, auth.FromContext(ctx), f)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return apperror.BadRequest("invalid request body: %v", err)
	}
	ctx := c.Request().Context()
	claim, err := h.svc.Update(ctx, auth.FromContext(ctx), id, &in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, claim)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.Delete(ctx, auth.FromContext(ctx), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// scrubRequest selects what a scrub run does.
type scrubRequest struct {
	AutoFix    bool     `json:"auto_fix"`
	Categories []string `json:"categories"`
}

func (r scrubRequest) options() scrub.Options {
	opts := scrub.Options{AutoFix: r.AutoFix}
	for _, cat := range r.Categories {
		opts.Categories = append(opts.Categories, scrub.Category(cat))
	}
	return opts
}

func (h *Handler) Scrub(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req scrubRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body: %v", err)
	}
	ctx := c.Request().Context()
	outcome, err := h.svc.RunScrub(ctx, auth.FromContext(ctx), id, req.options())
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, outcome)
}

func (h *Handler) AutoFix(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	claim, out, err := h.svc.AutoFix(ctx, auth.FromContext(ctx), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, map[string]interface{}{
		"claim":       claim,
		"fixed":       out.Fixed,
		"fixed_count": out.FixedCount,
		"message":     out.Message,
	})
}

func (h *Handler) Submit(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	claim, err := h.svc.Submit(ctx, auth.FromContext(ctx), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, claim)
}

// resubmitRequest carries the mandatory reason and optional corrections.
type resubmitRequest struct {
	Reason  string       `json:"reason"`
	Changes *UpdateInput `json:"changes,omitempty"`
}

func (h *Handler) Resubmit(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req resubmitRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body: %v", err)
	}
	ctx := c.Request().Context()
	claim, err := h.svc.Resubmit(ctx, auth.FromContext(ctx), id, req.Reason, req.Changes)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, claim)
}

// batchScrubRequest names the claims to scrub and the run options.
type batchScrubRequest struct {
	ClaimIDs []uuid.UUID `json:"claim_ids"`
	scrubRequest
}

func (h *Handler) BatchScrub(c echo.Context) error {
	var req batchScrubRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body: %v", err)
	}
	ctx := c.Request().Context()
	result, err := h.svc.BatchScrub(ctx, auth.FromContext(ctx), req.ClaimIDs, req.options())
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, result)
}

func (h *Handler) Stats(c echo.Context) error {
	var from, to *time.Time
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return apperror.BadRequest("invalid from, want YYYY-MM-DD")
		}
		from = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return apperror.BadRequest("invalid to, want YYYY-MM-DD")
		}
		to = &t
	}
	ctx := c.Request().Context()
	stats, err := h.svc.StatsOverview(ctx, auth.FromContext(ctx), from, to)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, stats)
}

func (h *Handler) ListReports(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.svc.ListReports(ctx, auth.FromContext(ctx), id, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetReport(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	detail, err := h.svc.GetReport(ctx, auth.FromContext(ctx), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, detail)
}
