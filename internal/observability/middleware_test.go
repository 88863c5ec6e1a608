package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	metrics := NewMetrics()
	handler := RequestLoggingMiddleware(NewLoggerTo(&buf), metrics, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.RemoteAddr = "198.51.100.4:5123"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http_request", entry["msg"])
	assert.Equal(t, "/auth/me", entry["path"])
	assert.InDelta(t, http.StatusTeapot, entry["status"], 0)
	assert.Equal(t, "198.51.100.4:5123", entry["ip"])
	assert.Contains(t, scrape(t, metrics), `status="418"`)
}

func TestRecoverMiddleware(t *testing.T) {
	var buf bytes.Buffer
	handler := RecoverMiddleware(NewLoggerTo(&buf), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	assert.Contains(t, buf.String(), "panic_recovered")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{name: "first forwarded hop", forwarded: "203.0.113.7, 10.0.0.1", remoteAddr: "10.0.0.1:443", want: "203.0.113.7"},
		{name: "blank forwarded", forwarded: " , 10.0.0.1", remoteAddr: "10.0.0.1:443", want: "10.0.0.1:443"},
		{name: "remote addr", remoteAddr: "10.0.0.1:443", want: "10.0.0.1:443"},
		{name: "nothing", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
