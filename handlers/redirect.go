package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/andre-fig/backoffice/db"
	"github.com/andre-fig/backoffice/services"
	"github.com/andre-fig/backoffice/workers"
)

// RedirectOperations is the service surface used by RedirectHandler
type RedirectOperations interface {
	RedirectImmediately(ctx context.Context, req db.ImmediateRedirectRequest) (*db.RedirectOutcome, error)
	CreateScheduledRedirect(ctx context.Context, req db.CreateScheduledRedirectRequest) (*db.ScheduledRedirect, error)
	GetScheduledRedirect(ctx context.Context, id string) (*db.ScheduledRedirect, error)
	CancelScheduledRedirect(ctx context.Context, id string) (*db.ScheduledRedirect, error)
	RemoveActiveOverride(ctx context.Context, sectorCode, destinationUserID string) error
	RemoveRedirect(ctx context.Context, ref services.RedirectRef) error
	UpdateEndDate(ctx context.Context, id string, endDate time.Time) (*db.ScheduledRedirect, error)
	ListRedirects(ctx context.Context) ([]db.RedirectSummary, error)
	ListUserSectors(ctx context.Context, userID string) ([]db.Sector, error)
}

// Reconciler exposes the reconciliation loop to operators
type Reconciler interface {
	RunCycle(ctx context.Context) (workers.CycleReport, error)
	LastReport() *workers.CycleReport
}

type RedirectHandler struct {
	Service    RedirectOperations
	Reconciler Reconciler
	Logger     *zap.Logger
}

func NewRedirectHandler(service RedirectOperations, reconciler Reconciler, logger *zap.Logger) *RedirectHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		Service:    service,
		Reconciler: reconciler,
		Logger:     logger,
	}
}

// RedirectImmediately moves a user's chats and routing to another user now
func (h *RedirectHandler) RedirectImmediately(c *gin.Context) {
	var req db.ImmediateRedirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.Service.RedirectImmediately(c.Request.Context(), req)
	if err != nil {
		h.Logger.Warn("immediate redirect failed",
			zap.String("source_user_id", req.SourceUserID),
			zap.String("destination_user_id", req.DestinationUserID),
			zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// ListRedirects returns active overrides followed by stored records
func (h *RedirectHandler) ListRedirects(c *gin.Context) {
	redirects, err := h.Service.ListRedirects(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if redirects == nil {
		redirects = []db.RedirectSummary{}
	}

	c.JSON(http.StatusOK, gin.H{"redirects": redirects})
}

// CreateScheduledRedirect stores a future redirect
func (h *RedirectHandler) CreateScheduledRedirect(c *gin.Context) {
	var req db.CreateScheduledRedirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.Service.CreateScheduledRedirect(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rec)
}

func (h *RedirectHandler) GetScheduledRedirect(c *gin.Context) {
	rec, err := h.Service.GetScheduledRedirect(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// CancelScheduledRedirect cancels a pending record or ends an active one now
func (h *RedirectHandler) CancelScheduledRedirect(c *gin.Context) {
	rec, err := h.Service.CancelScheduledRedirect(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// RemoveActiveOverride drops a routing override and gives the sector's chats back
func (h *RedirectHandler) RemoveActiveOverride(c *gin.Context) {
	sector := c.Param("sector")
	destination := c.Param("destination")

	if err := h.Service.RemoveActiveOverride(c.Request.Context(), sector, destination); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Redirect removed successfully"})
}

// RemoveRedirect dispatches on the legacy id format: "<sector>:<destination>" or a record id
func (h *RedirectHandler) RemoveRedirect(c *gin.Context) {
	scheduled := false
	if raw := c.Query("scheduled"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "scheduled must be a boolean"})
			return
		}
		scheduled = parsed
	}

	ref, err := services.ParseRedirectRef(c.Param("id"), scheduled)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.Service.RemoveRedirect(c.Request.Context(), ref); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Redirect removed successfully"})
}

func (h *RedirectHandler) UpdateEndDate(c *gin.Context) {
	var req db.UpdateRedirectEndDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.Service.UpdateEndDate(c.Request.Context(), c.Param("id"), req.EndDate)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (h *RedirectHandler) ListUserSectors(c *gin.Context) {
	sectors, err := h.Service.ListUserSectors(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if sectors == nil {
		sectors = []db.Sector{}
	}

	c.JSON(http.StatusOK, gin.H{"sectors": sectors})
}

// GetReconciliation returns the report of the last reconciliation cycle
func (h *RedirectHandler) GetReconciliation(c *gin.Context) {
	if h.Reconciler == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Reconciliation is disabled"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": h.Reconciler.LastReport()})
}

// RunReconciliation triggers one cycle and waits for it
func (h *RedirectHandler) RunReconciliation(c *gin.Context) {
	if h.Reconciler == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Reconciliation is disabled"})
		return
	}

	report, err := h.Reconciler.RunCycle(c.Request.Context())
	if err != nil {
		if errors.Is(err, workers.ErrCycleInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}
