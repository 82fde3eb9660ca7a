package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// serveRequestID runs one request and returns the response header and the id
// the handler saw in gin.Context.
func serveRequestID(t *testing.T, inbound string) (header, fromContext string) {
	t.Helper()
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		fromContext = c.GetString(RequestIDKey)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if inbound != "" {
		req.Header.Set(RequestIDHeader, inbound)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header().Get(RequestIDHeader), fromContext
}

// ---------------------------------------------------------------------------
// RequestIDMiddleware
// ---------------------------------------------------------------------------

func TestRequestIDMiddleware_GeneratesUUID(t *testing.T) {
	header, ctxID := serveRequestID(t, "")
	if _, err := uuid.Parse(header); err != nil {
		t.Errorf("X-Request-ID = %q, want a UUID: %v", header, err)
	}
	if ctxID != header {
		t.Errorf("context id %q != header id %q", ctxID, header)
	}
}

func TestRequestIDMiddleware_PropagatesInboundID(t *testing.T) {
	const upstream = "lb-7f3a-0001"
	header, ctxID := serveRequestID(t, upstream)
	if header != upstream || ctxID != upstream {
		t.Errorf("got header=%q ctx=%q, want %q", header, ctxID, upstream)
	}
}

func TestRequestIDMiddleware_ReplacesOversizedInboundID(t *testing.T) {
	header, _ := serveRequestID(t, strings.Repeat("x", maxInboundRequestID+1))
	if _, err := uuid.Parse(header); err != nil {
		t.Errorf("oversized inbound id was not replaced: %q", header)
	}
}

func TestRequestIDMiddleware_DistinctPerRequest(t *testing.T) {
	seen := make(map[string]bool)
	for i := range 10 {
		id, _ := serveRequestID(t, "")
		if seen[id] {
			t.Fatalf("duplicate request id %q on iteration %d", id, i)
		}
		seen[id] = true
	}
}
