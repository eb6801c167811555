package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/flowforge/mediaflow/internal/platform/ctxutil"
)

func TestAttachTraceContextGeneratesIDsWhenAbsent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	var seen *ctxutil.TraceData
	router.Use(AttachTraceContext())
	router.GET("/x", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if seen == nil || seen.TraceID == "" || seen.RequestID == "" {
		t.Fatalf("expected trace data to be populated, got %+v", seen)
	}
	if rec.Header().Get(headerTraceID) != seen.TraceID {
		t.Fatalf("response trace header %q does not match context trace id %q", rec.Header().Get(headerTraceID), seen.TraceID)
	}
	if rec.Header().Get(headerRequestID) != seen.RequestID {
		t.Fatalf("response request header %q does not match context request id %q", rec.Header().Get(headerRequestID), seen.RequestID)
	}
}

func TestAttachTraceContextHonorsInboundRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AttachTraceContext())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get(headerRequestID); got != "req-123" {
		t.Fatalf("request id = %q, want %q", got, "req-123")
	}
}
