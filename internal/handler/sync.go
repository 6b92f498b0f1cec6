package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	syncsvc "dexmon/internal/sync"
)

type SyncHandler struct {
	Orchestrator *syncsvc.Orchestrator
	Checker      *syncsvc.HealthChecker
	Logger       *zap.Logger
}

func (h *SyncHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/sync")
	group.POST("", h.sync)
	group.GET("/health", h.health)
	group.GET("/cold-start", h.coldStart)
}

type syncRequest struct {
	Strategy            string `json:"strategy"`
	ColdStartStrategy   string `json:"cold_start_strategy"`
	RecentDays          int    `json:"recent_days"`
	BatchSize           int    `json:"batch_size"`
	MaxHistoricalTrades int64  `json:"max_historical_trades"`
	FromTimestamp       *int64 `json:"from_timestamp"`
}

func (h *SyncHandler) sync(c *gin.Context) {
	if h.Orchestrator == nil {
		Error(c, http.StatusInternalServerError, "orchestrator unavailable", nil)
		return
	}
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	opts := syncsvc.Options{
		Strategy:            req.Strategy,
		ColdStartStrategy:   req.ColdStartStrategy,
		RecentDays:          req.RecentDays,
		BatchSize:           req.BatchSize,
		MaxHistoricalTrades: req.MaxHistoricalTrades,
	}
	if req.FromTimestamp != nil {
		from := time.Unix(*req.FromTimestamp, 0).UTC()
		opts.FromTimestamp = &from
	}

	result, err := h.Orchestrator.Sync(c.Request.Context(), opts)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("sync run failed", zap.String("run_id", result.RunID), zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, result.Message, RunMeta(result.RunID))
		return
	}
	Ok(c, result, RunMeta(result.RunID))
}

func (h *SyncHandler) health(c *gin.Context) {
	if h.Checker == nil {
		Error(c, http.StatusInternalServerError, "health checker unavailable", nil)
		return
	}
	status, err := h.Checker.CheckHealth(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, status, nil)
}

func (h *SyncHandler) coldStart(c *gin.Context) {
	if h.Orchestrator == nil {
		Error(c, http.StatusInternalServerError, "orchestrator unavailable", nil)
		return
	}
	analysis, err := h.Orchestrator.AnalyzeColdStart(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, analysis, nil)
}
