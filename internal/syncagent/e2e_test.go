package syncagent_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hyperlocal/internal/api"
	"hyperlocal/internal/config"
	"hyperlocal/internal/domain"
	"hyperlocal/internal/enrichment"
	"hyperlocal/internal/observability"
	"hyperlocal/internal/realtime"
	"hyperlocal/internal/service"
	"hyperlocal/internal/storage/memory"
	"hyperlocal/internal/syncagent"
)

type downAddress struct{}

func (downAddress) ReverseGeocode(context.Context, float64, float64) (string, error) {
	return "", errors.New("geocoder unreachable")
}

type downWeather struct{}

func (downWeather) Current(context.Context, float64, float64) (*domain.Weather, error) {
	return nil, errors.New("weather unreachable")
}

type changeLog struct {
	mu      sync.Mutex
	reasons []string
}

func (c *changeLog) record(reason string, _ syncagent.Mirror) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reasons = append(c.reasons, reason)
}

func (c *changeLog) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, r := range c.reasons {
		if r != "resync" {
			out = append(out, r)
		}
	}
	return out
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewRealClock()

	store := memory.NewStore(clock, logger)
	hub := realtime.NewHub(realtime.DefaultSessionBuffer, metrics, logger)
	t.Cleanup(hub.Close)

	enricher := enrichment.NewEnricher(downAddress{}, downWeather{}, 100*time.Millisecond, metrics, logger)
	incidents := service.NewIncidentService(store, enricher, hub.Topic(realtime.TopicIncidents), nil, clock, metrics, logger)
	svc := service.NewService(incidents, service.NewStatsService(store, hub))

	cfg := &config.Config{APIKey: "secret"}
	cfg.Http.WriteTimeout = 5 * time.Second

	server := api.NewServer(cfg, logger, svc, realtime.NewTransport(hub, time.Second, logger))
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func startAgent(t *testing.T, ctx context.Context, baseURL string, log *changeLog) *syncagent.Agent {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	agent := syncagent.NewAgent(syncagent.NewClient(baseURL, logger),
		syncagent.WithLogger(logger),
		syncagent.WithBackoff(10*time.Millisecond, 50*time.Millisecond),
		syncagent.WithOnChange(log.record),
	)
	go func() { _ = agent.Run(ctx) }()

	require.Eventually(t, func() bool { return agent.State() == syncagent.StateSynced }, 3*time.Second, 10*time.Millisecond)
	return agent
}

func TestEndToEnd_ReportAndConfirmReachOtherSession(t *testing.T) {
	srv := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var logA, logB changeLog
	agentA := startAgent(t, ctx, srv.URL, &logA)
	agentB := startAgent(t, ctx, srv.URL, &logB)

	body := `{"latitude":12.9716,"longitude":77.5946,"incidentType":"waterlogging","description":"Knee-deep water under the underpass"}`
	resp, err := http.Post(srv.URL+"/api/incidents", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	assert.NotContains(t, string(raw), `"weather"`)

	var created domain.IncidentResponse
	require.NoError(t, json.Unmarshal(raw, &created))
	require.NotNil(t, created.Incident)
	assert.Equal(t, domain.UnknownAddress, created.Incident.Address)
	assert.Nil(t, created.Incident.Weather)
	assert.Zero(t, created.Incident.Confirmations)

	id := created.Incident.ID

	resp, err = http.Post(srv.URL+"/api/incidents/"+id.String()+"/confirm", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		inc, ok := agentB.Mirror()[id]
		return ok && inc.Confirmations == 1
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{
		string(domain.EventIncidentCreated),
		string(domain.EventIncidentConfirmed),
	}, logB.events())

	require.Eventually(t, func() bool {
		_, ok := agentA.Mirror()[id]
		return ok
	}, 3*time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/incidents/"+id.String(), nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		_, okA := agentA.Mirror()[id]
		_, okB := agentB.Mirror()[id]
		return !okA && !okB
	}, 3*time.Second, 10*time.Millisecond)
}

func TestEndToEnd_ReconnectResyncsMissedIncidents(t *testing.T) {
	srv := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	var log changeLog
	agent := startAgent(t, ctx, srv.URL, &log)
	cancel()
	require.Eventually(t, func() bool { return agent.State() == syncagent.StateDisconnected }, time.Second, 10*time.Millisecond)
	assert.True(t, agent.Suspect())

	body := `{"latitude":1,"longitude":1,"incidentType":"other","description":"reported while offline"}`
	resp, err := http.Post(srv.URL+"/api/incidents", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	go func() { _ = agent.Run(ctx2) }()

	require.Eventually(t, func() bool {
		return agent.State() == syncagent.StateSynced && len(agent.Mirror()) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.False(t, agent.Suspect())
}
