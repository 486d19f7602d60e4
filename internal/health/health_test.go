package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inputsentry/internal/engine"
)

func healthy(context.Context) CheckResult   { return CheckResult{Status: StatusHealthy} }
func unhealthy(context.Context) CheckResult { return CheckResult{Status: StatusUnhealthy} }
func degraded(context.Context) CheckResult  { return CheckResult{Status: StatusDegraded} }
func unknown(context.Context) CheckResult   { return CheckResult{Status: StatusUnknown} }

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name       string
		components []Component
		want       Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Component{{Name: "a", Critical: true, Check: healthy}}, StatusHealthy},
		{"critical failure", []Component{
			{Name: "a", Critical: true, Check: unhealthy},
			{Name: "b", Check: healthy},
		}, StatusUnhealthy},
		{"optional failure degrades", []Component{
			{Name: "a", Critical: true, Check: healthy},
			{Name: "b", Check: unhealthy},
		}, StatusDegraded},
		{"critical unknown outranks optional failure", []Component{
			{Name: "a", Critical: true, Check: unknown},
			{Name: "b", Check: unhealthy},
			{Name: "c", Check: degraded},
		}, StatusUnknown},
		{"critical failure outranks critical unknown", []Component{
			{Name: "a", Critical: true, Check: unknown},
			{Name: "b", Critical: true, Check: unhealthy},
		}, StatusUnhealthy},
		{"optional unknown is ignored", []Component{
			{Name: "a", Critical: true, Check: healthy},
			{Name: "b", Check: unknown},
		}, StatusHealthy},
		{"critical degraded", []Component{
			{Name: "a", Critical: true, Check: degraded},
			{Name: "b", Check: healthy},
		}, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for _, comp := range tt.components {
				c.Register(comp)
			}
			c.Check(context.Background())
			// Map order must not matter.
			for i := 0; i < 20; i++ {
				assert.Equal(t, tt.want, c.OverallStatus())
			}
		})
	}
}

func TestUncheckedCriticalIsUnknown(t *testing.T) {
	c := NewChecker()
	c.Register(Component{Name: "engine", Critical: true, Check: healthy})
	assert.Equal(t, StatusUnknown, c.OverallStatus())
	assert.Equal(t, StatusUnknown, c.Results()["engine"].Status)
}

func TestCheckRecoversPanicsAndTimeouts(t *testing.T) {
	c := NewChecker()
	c.Register(Component{Name: "panics", Check: func(context.Context) CheckResult { panic("boom") }})
	c.Register(Component{Name: "slow", Timeout: 20 * time.Millisecond, Check: func(ctx context.Context) CheckResult {
		time.Sleep(time.Second)
		return CheckResult{Status: StatusHealthy}
	}})

	results := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, results["panics"].Status)
	assert.Equal(t, "boom", results["panics"].Error)
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Equal(t, "check timed out", results["slow"].Message)
	assert.Equal(t, StatusDegraded, c.OverallStatus())
}

func TestEngineCheck(t *testing.T) {
	stats := engine.Stats{Active: true, Verdicts: 10}
	check := EngineCheck(func() engine.Stats { return stats }, 0.5)

	assert.Equal(t, StatusHealthy, check(context.Background()).Status)

	stats.Dropped = 6
	res := check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, uint64(6), res.Details["dropped"])

	stats.Active = false
	assert.Equal(t, StatusUnhealthy, check(context.Background()).Status)
}

func TestEngineCheckWithRealEngine(t *testing.T) {
	e, err := engine.New(engine.DefaultConfig())
	require.NoError(t, err)
	check := EngineCheck(e.Statistics, 0.5)

	assert.Equal(t, StatusUnhealthy, check(context.Background()).Status)
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()
	assert.Equal(t, StatusHealthy, check(context.Background()).Status)
}

func TestPingCheck(t *testing.T) {
	ok := PingCheck(func(context.Context) error { return nil })
	assert.Equal(t, StatusHealthy, ok(context.Background()).Status)

	bad := PingCheck(func(context.Context) error { return errors.New("database is locked") })
	res := bad(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "database is locked", res.Error)
}

func TestHandlers(t *testing.T) {
	c := NewChecker()
	var failing atomic.Bool
	c.Register(Component{Name: "engine", Critical: true, Check: func(context.Context) CheckResult {
		if failing.Load() {
			return CheckResult{Status: StatusUnhealthy}
		}
		return CheckResult{Status: StatusHealthy}
	}})

	mux := http.NewServeMux()
	c.Mount(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	get := func(path string) (int, map[string]any) {
		t.Helper()
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return resp.StatusCode, body
	}

	code, body := get("/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", body["status"])

	code, _ = get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	c.SetReady(true)
	code, body = get("/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(StatusHealthy), body["status"])

	code, body = get("/health?full=true")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["components"], "engine")

	failing.Store(true)
	code, _ = get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, body = get("/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Nil(t, body["components"])
}
