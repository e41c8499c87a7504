package system_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hyperlocal/internal/api/handlers/http/system"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSystemHealth(t *testing.T) {
	t.Parallel()

	h := system.NewHandler(newTestLogger())
	rr := httptest.NewRecorder()
	h.SystemHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestSystemReady_AllChecksPass(t *testing.T) {
	t.Parallel()

	calls := 0
	ok := pingFunc(func(ctx context.Context) error {
		calls++
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})
	h := system.NewHandler(newTestLogger(),
		system.Check{Name: "store", Pinger: ok},
		system.Check{Name: "redis", Pinger: ok},
	)

	rr := httptest.NewRecorder()
	h.SystemReady(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, calls)
}

func TestSystemReady_FailingCheck(t *testing.T) {
	t.Parallel()

	h := system.NewHandler(newTestLogger(),
		system.Check{Name: "store", Pinger: pingFunc(func(context.Context) error { return nil })},
		system.Check{Name: "redis", Pinger: pingFunc(func(context.Context) error { return errors.New("connection refused") })},
	)

	rr := httptest.NewRecorder()
	h.SystemReady(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "redis", body["check"])
	assert.Equal(t, "connection refused", body["error"])
}
