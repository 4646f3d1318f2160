package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/shikkha-backend/internal/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, reqID string, h gin.HandlerFunc) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	r.GET("/", h)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v (%s)", err, w.Body.String())
	}
	return w, body
}

func TestRequestIDReusedWhenWellFormed(t *testing.T) {
	w, body := serve(t, "edge-7f3a.01", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"ok": true})
	})

	if got := w.Header().Get("X-Request-ID"); got != "edge-7f3a.01" {
		t.Errorf("header = %q", got)
	}
	if body.Metadata.RequestID != "edge-7f3a.01" {
		t.Errorf("metadata request id = %q", body.Metadata.RequestID)
	}
}

func TestRequestIDReplacedWhenMalformed(t *testing.T) {
	for _, id := range []string{"has space", "<script>", strings.Repeat("a", 65)} {
		w, body := serve(t, id, func(c *gin.Context) {
			response.Success(c, http.StatusOK, nil)
		})
		got := w.Header().Get("X-Request-ID")
		if got == id || got == "" {
			t.Errorf("id %q was not replaced (got %q)", id, got)
		}
		if body.Metadata.RequestID != got {
			t.Errorf("metadata %q differs from header %q", body.Metadata.RequestID, got)
		}
	}
}

func TestFailWithFieldsEnvelope(t *testing.T) {
	w, body := serve(t, "", func(c *gin.Context) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"title": "required"})
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if body.Error == nil || body.Error.Code != response.ErrValidation {
		t.Fatalf("error = %+v", body.Error)
	}
	if body.Error.Message == "" || body.Error.Fields["title"] != "required" {
		t.Errorf("error body = %+v", body.Error)
	}
	if body.Data != nil {
		t.Errorf("data = %v, want null", body.Data)
	}
}

func TestNewPagination(t *testing.T) {
	p := response.NewPagination(0, 500, 250)
	if p.Page != 1 || p.PerPage != 100 || p.TotalPages != 3 {
		t.Errorf("pagination = %+v", p)
	}
}
