package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dexmon/internal/replay"
)

type ReplayHandler struct {
	Engine *replay.Engine
	Logger *zap.Logger
}

func (h *ReplayHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/replay")
	group.POST("", h.reconstruct)
	group.POST("/resume", h.resume)
	group.POST("/full", h.full)
}

type replayRequest struct {
	FromTimestamp *int64 `json:"from_timestamp"`
}

func (h *ReplayHandler) reconstruct(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusInternalServerError, "replay engine unavailable", nil)
		return
	}
	var req replayRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	var from *time.Time
	if req.FromTimestamp != nil {
		ts := time.Unix(*req.FromTimestamp, 0).UTC()
		from = &ts
	}
	h.respond(c, "reconstruct", func() (replay.Result, error) {
		return h.Engine.Reconstruct(c.Request.Context(), from)
	})
}

func (h *ReplayHandler) resume(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusInternalServerError, "replay engine unavailable", nil)
		return
	}
	h.respond(c, "resume", func() (replay.Result, error) {
		return h.Engine.Resume(c.Request.Context())
	})
}

func (h *ReplayHandler) full(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusInternalServerError, "replay engine unavailable", nil)
		return
	}
	h.respond(c, "full", func() (replay.Result, error) {
		return h.Engine.ForceComplete(c.Request.Context())
	})
}

func (h *ReplayHandler) respond(c *gin.Context, op string, run func() (replay.Result, error)) {
	result, err := run()
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("replay run failed", zap.String("op", op), zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, result.Message, nil)
		return
	}
	Ok(c, result, nil)
}
