package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// apiResponse is the JSON envelope every endpoint returns. Meta carries
// run-scoped context (run id) so API-triggered jobs can be correlated with
// their sync_state rows and log lines.
type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// RunMeta builds the envelope meta for a job run. An empty run id (e.g. a
// request rejected before a run was started) produces no meta at all.
func RunMeta(runID string) map[string]any {
	if runID == "" {
		return nil
	}
	return map[string]any{"run_id": runID}
}
