package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type envelope struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
	Meta    map[string]any `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var body envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestOkEnvelopeCarriesRunMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	Ok(c, map[string]any{"processed": 3}, RunMeta("run-123"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body.Code != 0 || body.Message != "ok" {
		t.Fatalf("envelope = %+v, want code 0 message ok", body)
	}
	if body.Meta["run_id"] != "run-123" {
		t.Fatalf("meta = %v, want run_id run-123", body.Meta)
	}
}

func TestErrorEnvelopeCarriesRunMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	Error(c, http.StatusInternalServerError, "sync failed", RunMeta("run-9"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body.Code != http.StatusInternalServerError || body.Message != "sync failed" {
		t.Fatalf("envelope = %+v, want code 500 with message", body)
	}
	if body.Meta["run_id"] != "run-9" {
		t.Fatalf("meta = %v, want run_id run-9", body.Meta)
	}
}

func TestRunMetaEmptyRunID(t *testing.T) {
	if meta := RunMeta(""); meta != nil {
		t.Fatalf("RunMeta(\"\") = %v, want nil", meta)
	}
}
