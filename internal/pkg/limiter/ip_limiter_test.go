package limiter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holidaze/internal/pkg/errs"
	"holidaze/internal/pkg/metrics"
)

func request(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareRejectsOverBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	l := NewIPRateLimiter(ctx, 0.001, 2, "auth", m)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	assert.Equal(t, http.StatusNoContent, request(h, "10.0.0.1:5000").Code)
	assert.Equal(t, http.StatusNoContent, request(h, "10.0.0.1:5001").Code)

	rec := request(h, "10.0.0.1:5002")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var body struct {
		Code int `json:"code"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, errs.ErrRateLimitExceeded, body.Code)

	assert.Equal(t, http.StatusNoContent, request(h, "10.0.0.2:5000").Code, "other addresses have their own bucket")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitRejectionsTotal.WithLabelValues("auth")))
}

func TestSweepRemovesFullBuckets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewIPRateLimiter(ctx, 1, 1, "tabs", nil)
	l.GetLimiter("10.0.0.1").Allow()
	l.GetLimiter("10.0.0.2")

	removed, remaining := l.sweep(time.Now())
	assert.Equal(t, 1, removed, "the untouched bucket is full")
	assert.Equal(t, 1, remaining)

	removed, remaining = l.sweep(time.Now().Add(time.Minute))
	assert.Equal(t, 1, removed)
	assert.Zero(t, remaining)
}
