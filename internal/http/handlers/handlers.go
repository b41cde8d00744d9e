package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/wespeak/backend/internal/db"
	"github.com/wespeak/backend/internal/models"
	"github.com/wespeak/backend/internal/service"
	"github.com/wespeak/backend/internal/stats"
)

type Handler struct {
	Store     *db.Store
	Stats     *service.StatsService
	Sweep     *service.SweepJob
	Validator *validator.Validate
	Logger    zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary List organizations
// @Tags organizations
// @Produce json
// @Success 200 {array} map[string]any
// @Router /api/organizations [get]
func (h *Handler) OrganizationsList(c *gin.Context) {
	orgs, err := h.Store.ListOrganizations(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list organizations", err.Error())
		return
	}

	out := make([]gin.H, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, gin.H{
			"id":        org.ID,
			"name":      org.Name,
			"sector":    org.Sector,
			"score":     org.Stats.Score,
			"is_crisis": org.IsCrisis,
		})
	}
	c.JSON(http.StatusOK, out)
}

// @Summary Organization details with stats
// @Tags organizations
// @Produce json
// @Success 200 {object} models.Organization
// @Failure 404 {object} map[string]any
// @Router /api/organizations/{id} [get]
func (h *Handler) OrganizationDetails(c *gin.Context) {
	org, err := h.Store.GetOrganization(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Organization not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load organization", err.Error())
		return
	}
	c.JSON(http.StatusOK, org)
}

// @Summary Organization time-series graph
// @Tags organizations
// @Produce json
// @Success 200 {object} models.DataGraph
// @Router /api/organizations/{id}/graph [get]
func (h *Handler) OrganizationGraph(c *gin.Context) {
	org, err := h.Store.GetOrganization(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Organization not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load organization", err.Error())
		return
	}
	c.JSON(http.StatusOK, org.Stats.DataGraph)
}

type createOrganizationRequest struct {
	Name      string `json:"name" validate:"required"`
	Sector    string `json:"sector"`
	Info      string `json:"info"`
	Followers int    `json:"followers" validate:"gte=0"`
}

// @Summary Create organization
// @Tags organizations
// @Accept json
// @Produce json
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /api/organizations [post]
func (h *Handler) CreateOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}

	now := time.Now().UTC()
	org := models.Organization{
		Name:      req.Name,
		Sector:    req.Sector,
		Info:      req.Info,
		Followers: req.Followers,
		Stats:     models.NewStats(),
	}
	org.Stats.DataGraph = stats.SeedGraph(org.Stats.Score, now, h.Stats.EpochYear)

	id, err := h.Store.CreateOrganization(c.Request.Context(), org)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to create organization", err.Error())
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

type createComplaintRequest struct {
	CompanyID     string `json:"company_id" validate:"required"`
	UserID        string `json:"user_id"`
	Topic         string `json:"topic"`
	Message       string `json:"message" validate:"required"`
	Location      string `json:"location"`
	Reimbursement bool   `json:"reimbursement"`
	Anonymous     bool   `json:"anonymous"`
}

// @Summary File a complaint
// @Description Persists the complaint, then applies the stats delta
// @Tags complaints
// @Accept json
// @Produce json
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /api/complaints [post]
func (h *Handler) CreateComplaint(c *gin.Context) {
	var req createComplaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}

	ctx := c.Request.Context()
	if _, err := h.Store.GetOrganization(ctx, req.CompanyID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Organization not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load organization", err.Error())
		return
	}

	complaint := models.Complaint{
		CompanyID:     req.CompanyID,
		UserID:        req.UserID,
		Topic:         req.Topic,
		Message:       req.Message,
		Location:      req.Location,
		Reimbursement: req.Reimbursement,
		Anonymous:     req.Anonymous,
		State:         models.StateSubmitted,
		Created:       time.Now().UTC(),
	}

	id, err := h.Store.CreateComplaint(ctx, complaint)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to create complaint", err.Error())
		return
	}
	complaint.ID = id

	if err := h.Stats.OnComplaintCreated(ctx, complaint); err != nil {
		h.Logger.Error().Err(err).Str("complaint_id", id).Msg("stats update failed")
		writeStatsError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "state": complaint.State.String()})
}

type changeStateRequest struct {
	State int `json:"state" validate:"gte=0,lte=5"`
}

// @Summary Change complaint state
// @Tags complaints
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /api/complaints/{id}/state [post]
func (h *Handler) ChangeComplaintState(c *gin.Context) {
	var req changeStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}
	newState := models.ComplaintState(req.State)

	ctx := c.Request.Context()
	complaint, err := h.Store.GetComplaint(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Complaint not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load complaint", err.Error())
		return
	}

	alreadyClosed := complaint.State.Closed()

	// Reaching resolved/reimbursed clears a pending reopen flag.
	reopen := complaint.Reopen && !newState.Closed()
	if err := h.Store.UpdateComplaintState(ctx, complaint.ID, newState, reopen); err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to update complaint", err.Error())
		return
	}
	complaint.State = newState
	complaint.Reopen = reopen

	// A complaint closed twice without a reopen in between must not earn
	// the resolution credit again.
	if newState.Closed() && !alreadyClosed {
		if err := h.Stats.OnComplaintStateChanged(ctx, complaint); err != nil {
			h.Logger.Error().Err(err).Str("complaint_id", complaint.ID).Msg("stats update failed")
			writeStatsError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"id": complaint.ID, "state": newState.String()})
}

// @Summary Reopen a resolved complaint
// @Tags complaints
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/complaints/{id}/reopen [post]
func (h *Handler) ReopenComplaint(c *gin.Context) {
	ctx := c.Request.Context()
	complaint, err := h.Store.GetComplaint(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Complaint not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load complaint", err.Error())
		return
	}
	if !complaint.State.Closed() {
		writeError(c, http.StatusConflict, "NOT_CLOSED", "Only resolved or reimbursed complaints can be reopened", nil)
		return
	}

	if err := h.Store.UpdateComplaintState(ctx, complaint.ID, models.StateDelivered, true); err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to update complaint", err.Error())
		return
	}
	complaint.State = models.StateDelivered
	complaint.Reopen = true

	if err := h.Stats.OnComplaintReopened(ctx, complaint); err != nil {
		h.Logger.Error().Err(err).Str("complaint_id", complaint.ID).Msg("stats update failed")
		writeStatsError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": complaint.ID, "state": complaint.State.String(), "reopen": true})
}

// @Summary Trigger a reconciliation sweep
// @Tags sweep
// @Produce json
// @Success 200 {object} service.SweepSummary
// @Router /api/sweep [post]
func (h *Handler) RunSweep(c *gin.Context) {
	ctx := c.Request.Context()
	runID, err := h.Store.CreateSweepRun(ctx, service.RunStatusRunning)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to create sweep run")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to create sweep run", err.Error())
		return
	}

	summary, err := h.Sweep.RunOnce(ctx, time.Now().UTC())
	status := service.RunStatusSuccess
	if err != nil {
		status = service.RunStatusFailed
	}
	b, _ := json.Marshal(summary)
	if finishErr := h.Store.FinishSweepRun(ctx, runID, status, b); finishErr != nil {
		h.Logger.Error().Err(finishErr).Msg("failed to finish sweep run")
	}

	if err != nil {
		h.Logger.Error().Err(err).Msg("sweep failed")
		writeError(c, http.StatusInternalServerError, "SWEEP_ERROR", "Sweep failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, summary)
}

// @Summary Latest sweep run
// @Tags sweep
// @Produce json
// @Success 200 {object} models.SweepRun
// @Router /api/runs/latest [get]
func (h *Handler) RunsLatest(c *gin.Context) {
	run, err := h.Store.GetLatestSweepRun(c.Request.Context())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "No sweep has run yet", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load sweep run", err.Error())
		return
	}

	var summary any
	if len(run.Summary) > 0 {
		_ = json.Unmarshal(run.Summary, &summary)
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          run.ID,
		"started_at":  run.StartedAt,
		"finished_at": run.FinishedAt,
		"status":      run.Status,
		"summary":     summary,
	})
}

func writeStatsError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, db.ErrConflict):
		writeError(c, http.StatusConflict, "CONFLICT", "Concurrent stats update, retry the request", nil)
	case errors.Is(err, db.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Organization not found", nil)
	case errors.Is(err, service.ErrComputation):
		writeError(c, http.StatusUnprocessableEntity, "INVALID_STATS", "Stats record is invalid", err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "STATS_ERROR", "Stats update failed", err.Error())
	}
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
