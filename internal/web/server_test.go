package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/rdm/internal/metrics"
	"github.com/elys-network/rdm/internal/state"
	"github.com/elys-network/rdm/internal/types"
)

type fakeSource struct {
	summaries []types.CycleSummary
	claims    map[string][]state.EpochClaim
	perf      *state.PerformanceMetrics
	err       error
	pingErr   error
	lastEpoch string
	lastLimit int
}

func (f *fakeSource) RecentSummaries(_ context.Context, limit int) ([]types.CycleSummary, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.summaries) {
		return f.summaries[:limit], nil
	}
	return f.summaries, nil
}

func (f *fakeSource) SummaryByID(_ context.Context, id int64) (*types.CycleSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.summaries {
		if f.summaries[i].SummaryID == id {
			return &f.summaries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: id %d", state.ErrSummaryNotFound, id)
}

func (f *fakeSource) PerformanceMetrics(context.Context) (*state.PerformanceMetrics, error) {
	return f.perf, f.err
}

func (f *fakeSource) EpochClaims(_ context.Context, epoch string) ([]state.EpochClaim, error) {
	f.lastEpoch = epoch
	return f.claims[epoch], f.err
}

func (f *fakeSource) Ping() error { return f.pingErr }

func newTestServer(source *fakeSource) *WebServer {
	ws := NewWebServer("0", source, nil)
	ws.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return ws
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func sampleSummaries() []types.CycleSummary {
	return []types.CycleSummary{
		{SummaryID: 2, CycleID: "b", CycleNumber: 2, Epoch: "2026-W43", Succeeded: 3},
		{SummaryID: 1, CycleID: "a", CycleNumber: 1, Epoch: "2026-W42", Failed: 1},
	}
}

func TestHealth(t *testing.T) {
	source := &fakeSource{summaries: sampleSummaries()}
	rec := get(t, newTestServer(source).Handler(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthDegradedWhenDatabaseDown(t *testing.T) {
	source := &fakeSource{pingErr: errors.New("down")}
	rec := get(t, newTestServer(source).Handler(), "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "DEGRADED")
}

func TestGetCycles(t *testing.T) {
	source := &fakeSource{summaries: sampleSummaries()}
	h := newTestServer(source).Handler()

	rec := get(t, h, "/api/cycles?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Cycles []types.CycleSummary `json:"cycles"`
		Count  int                  `json:"count"`
		Limit  int                  `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "b", body.Cycles[0].CycleID)

	get(t, h, "/api/cycles?limit=500")
	assert.Equal(t, 20, source.lastLimit)
}

func TestGetLatestAndByID(t *testing.T) {
	source := &fakeSource{summaries: sampleSummaries()}
	h := newTestServer(source).Handler()

	rec := get(t, h, "/api/cycles/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cycle_id":"b"`)

	rec = get(t, h, "/api/cycles/1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cycle_id":"a"`)

	rec = get(t, h, "/api/cycles/99")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, h, "/api/cycles/abc")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLatestCycleEmpty(t *testing.T) {
	rec := get(t, newTestServer(&fakeSource{}).Handler(), "/api/cycles/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetClaimsDefaultsToCurrentEpoch(t *testing.T) {
	amount := 12.5
	source := &fakeSource{claims: map[string][]state.EpochClaim{
		"2026-W43": {{Epoch: "2026-W43", Wallet: "w1", Claimed: true, Amount: &amount}},
	}}
	h := newTestServer(source).Handler()

	rec := get(t, h, "/api/claims")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-W43", source.lastEpoch)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	get(t, h, "/api/claims?epoch=2026-W40")
	assert.Equal(t, "2026-W40", source.lastEpoch)
}

func TestPerformanceError(t *testing.T) {
	source := &fakeSource{err: errors.New("boom")}
	rec := get(t, newTestServer(source).Handler(), "/api/performance")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to retrieve performance metrics")
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.ObserveTreasury(42)
	ws := NewWebServer("0", &fakeSource{}, m.Registry())

	rec := get(t, ws.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "rdm_treasury_balance 42"))
}

func TestOptionsPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&fakeSource{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/cycles", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
