package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PermAdut/autoservice-notify/pkg/health"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func TestLivenessHandler(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	health.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReadinessHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		checks health.Checks
		code   int
		body   string
	}{
		{name: "no checks", checks: nil, code: http.StatusOK, body: "OK"},
		{name: "all healthy", checks: health.Checks{"queue": ok, "worker": ok}, code: http.StatusOK, body: "OK"},
		{name: "one failing", checks: health.Checks{"queue": failing, "worker": ok}, code: http.StatusServiceUnavailable, body: "Service Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			health.ReadinessHandler(tt.checks)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestReadinessHandlerJSON(t *testing.T) {
	t.Parallel()

	h := health.ReadinessHandler(health.Checks{"queue": failing, "worker": ok})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/health/ready?format=json", nil),
		func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
			r.Header.Set("Accept", "application/json")
			return r
		}(),
	} {
		rec := httptest.NewRecorder()
		h(rec, req)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var resp health.Response
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, health.StatusUnhealthy, resp.Status)
		assert.Equal(t, health.StatusHealthy, resp.Checks["worker"].Status)
		assert.Equal(t, health.StatusUnhealthy, resp.Checks["queue"].Status)
		assert.Equal(t, "connection refused", resp.Checks["queue"].Error)
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, health.Run(context.Background(), health.Checks{"a": ok, "b": ok}))
	})

	t.Run("failing check is named", func(t *testing.T) {
		t.Parallel()

		err := health.Run(context.Background(), health.Checks{"queue": failing, "worker": ok})
		require.ErrorIs(t, err, health.ErrCheckFailed)
		assert.Contains(t, err.Error(), "queue: connection refused")
		assert.NotContains(t, err.Error(), "worker")
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		slow := func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}
		err := health.Run(context.Background(), health.Checks{"slow": slow}, health.WithTimeout(20*time.Millisecond))
		require.ErrorIs(t, err, health.ErrCheckFailed)
		require.ErrorIs(t, err, health.ErrCheckTimeout)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
