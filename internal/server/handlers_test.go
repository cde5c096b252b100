package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregorizeidler/IPTU-Checker/internal/config"
	"github.com/gregorizeidler/IPTU-Checker/internal/core"
	"github.com/gregorizeidler/IPTU-Checker/internal/core/model"
	"github.com/gregorizeidler/IPTU-Checker/internal/store"
)

// memStore is an in-memory store.Store for handler tests.
type memStore struct {
	mu           sync.Mutex
	parcels      map[string]model.Parcel
	observations map[string][]model.Observation
	records      map[string]model.DiscrepancyRecord
}

func newMemStore() *memStore {
	return &memStore{
		parcels:      make(map[string]model.Parcel),
		observations: make(map[string][]model.Observation),
		records:      make(map[string]model.DiscrepancyRecord),
	}
}

func (m *memStore) BuildIndices(context.Context) error { return nil }

func (m *memStore) SaveParcel(_ context.Context, parcel model.Parcel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parcels[parcel.ID] = parcel
	return nil
}

func (m *memStore) SaveObservations(_ context.Context, observations []model.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, obs := range observations {
		m.observations[obs.ParcelID] = append(m.observations[obs.ParcelID], obs)
	}
	return nil
}

func (m *memStore) SaveRecord(_ context.Context, record model.DiscrepancyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.UUID] = record
	return nil
}

func (m *memStore) ListRecords(_ context.Context, status string, limit, offset int) ([]model.DiscrepancyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DiscrepancyRecord
	for _, r := range m.records {
		if status == "" || string(r.Label) == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReconciledAt.After(out[j].ReconciledAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) LatestRecord(_ context.Context, parcelID string) (*model.DiscrepancyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.DiscrepancyRecord
	for _, r := range m.records {
		r := r
		if r.ParcelID == parcelID && (latest == nil || r.ReconciledAt.After(latest.ReconciledAt)) {
			latest = &r
		}
	}
	return latest, nil
}

func (m *memStore) DeleteRecord(_ context.Context, recordUUID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[recordUUID]; !ok {
		return false, nil
	}
	delete(m.records, recordUUID)
	return true, nil
}

func (m *memStore) Stats(context.Context) (store.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := store.Stats{ByLabel: make(map[string]int64)}
	var deltaSum float64
	for _, r := range m.records {
		stats.ByLabel[string(r.Label)]++
		stats.Total++
		deltaSum += r.Metrics.PercentDelta
	}
	if stats.Total > 0 {
		stats.AvgPercentDelta = deltaSum / float64(stats.Total)
	}
	stats.PotentialEvasion = stats.ByLabel[string(model.LabelUnderDeclared)]
	return stats, nil
}

func (m *memStore) CountRecords(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records)), nil
}

func (m *memStore) Close(context.Context) error { return nil }

func newTestServer() (*Server, *memStore) {
	gin.SetMode(gin.TestMode)
	st := newMemStore()
	engine := core.NewEngine(config.Default(), zerolog.Nop())
	return New(engine, st, nil, nil, 2, zerolog.Nop()), st
}

// stubProvider records the AOI it was asked for and returns canned
// observations.
type stubProvider struct {
	mu           sync.Mutex
	lat, lng     float64
	calls        int
	observations []model.Observation
}

func (p *stubProvider) Observations(_ context.Context, _ string, lat, lng float64) ([]model.Observation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lat, p.lng = lat, lng
	return p.observations, nil
}

type stubGeocoder struct {
	lat, lng float64
}

func (g *stubGeocoder) Locate(context.Context, string) (float64, float64, error) {
	return g.lat, g.lng, nil
}

func squareRing(x, y, w, h float64) [][]float64 {
	return [][]float64{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}}
}

func reconcileBody(id string, declared float64, obsW float64) ReconcileRequest {
	return ReconcileRequest{
		Parcel: ParcelInput{
			ID:           id,
			Ring:         squareRing(0, 0, 10, 10),
			CRS:          "LOCAL",
			DeclaredArea: declared,
		},
		Observations: []ObservationInput{
			{
				Source:  "sentinel-2",
				Ring:    squareRing(0, 0, obsW, 10),
				CRS:     "LOCAL",
				Quality: 0.9,
			},
		},
	}
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestReconcileEndpoint(t *testing.T) {
	srv, st := newTestServer()
	r := srv.SetupRouter()

	w := doJSON(t, r, http.MethodPost, "/reconcile", reconcileBody("P-1", 100, 12))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var record model.DiscrepancyRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, "P-1", record.ParcelID)
	assert.Equal(t, model.LabelUnderDeclared, record.Label)
	assert.InDelta(t, 20, record.Metrics.PercentDelta, 1e-9)

	// Persisted.
	assert.Len(t, st.records, 1)
	assert.Contains(t, st.parcels, "P-1")
	assert.Len(t, st.observations["P-1"], 1)
}

func TestReconcileEndpoint_EngineFailureIs422(t *testing.T) {
	srv, st := newTestServer()
	r := srv.SetupRouter()

	w := doJSON(t, r, http.MethodPost, "/reconcile", reconcileBody("P-1", 0, 10))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "zero registered area")
	assert.Empty(t, st.records, "no record on failure")
}

func TestReconcileEndpoint_ProviderFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := newMemStore()

	// ~111 m square at the equator, roughly 12392 m².
	ring := []model.Point{
		{X: 0, Y: 0}, {X: 0.001, Y: 0},
		{X: 0.001, Y: 0.001}, {X: 0, Y: 0.001},
	}
	obs, err := model.NewObservation("P-1", "sentinel-2", ring, "EPSG:4326", 0.9, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	provider := &stubProvider{observations: []model.Observation{obs}}

	srv := New(core.NewEngine(config.Default(), zerolog.Nop()), st, provider, nil, 2, zerolog.Nop())
	r := srv.SetupRouter()

	body := ReconcileRequest{Parcel: ParcelInput{
		ID:           "P-1",
		Ring:         [][]float64{{0, 0}, {0.001, 0}, {0.001, 0.001}, {0, 0.001}},
		CRS:          "EPSG:4326",
		DeclaredArea: 12400,
	}}
	w := doJSON(t, r, http.MethodPost, "/reconcile", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var record model.DiscrepancyRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, model.LabelConsistent, record.Label)

	// The provider was consulted at the ring's vertex mean.
	assert.Equal(t, 1, provider.calls)
	assert.InDelta(t, 0.0005, provider.lat, 1e-9)
	assert.InDelta(t, 0.0005, provider.lng, 1e-9)
	assert.Len(t, st.observations["P-1"], 1)
}

func TestReconcileEndpoint_MetricParcelUsesGeocoder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := newMemStore()

	obs, err := model.NewObservation("P-1", "sentinel-2",
		toVertices(squareRing(0, 0, 10, 10)), "LOCAL", 0.9,
		time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	provider := &stubProvider{observations: []model.Observation{obs}}
	geocoder := &stubGeocoder{lat: -23.5505, lng: -46.6333}

	srv := New(core.NewEngine(config.Default(), zerolog.Nop()), st, provider, geocoder, 2, zerolog.Nop())
	r := srv.SetupRouter()

	body := ReconcileRequest{Parcel: ParcelInput{
		ID:           "P-1",
		Address:      "Av. Paulista 1578, São Paulo",
		Ring:         squareRing(0, 0, 10, 10),
		CRS:          "LOCAL",
		DeclaredArea: 100,
	}}
	w := doJSON(t, r, http.MethodPost, "/reconcile", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Metric rings resolve the AOI through the geocoder, never the raw
	// vertex mean in meters.
	assert.InDelta(t, -23.5505, provider.lat, 1e-9)
	assert.InDelta(t, -46.6333, provider.lng, 1e-9)
}

func TestReconcileEndpoint_MetricParcelWithoutGeocoder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	provider := &stubProvider{}
	srv := New(core.NewEngine(config.Default(), zerolog.Nop()), newMemStore(), provider, nil, 2, zerolog.Nop())
	r := srv.SetupRouter()

	body := ReconcileRequest{Parcel: ParcelInput{
		ID:           "P-1",
		Ring:         squareRing(0, 0, 10, 10),
		CRS:          "LOCAL",
		DeclaredArea: 100,
	}}
	w := doJSON(t, r, http.MethodPost, "/reconcile", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 0, provider.calls)
}

func TestReconcileEndpoint_NoObservationsNoProvider(t *testing.T) {
	srv, _ := newTestServer()
	r := srv.SetupRouter()

	body := ReconcileRequest{Parcel: ParcelInput{
		ID:           "P-1",
		Ring:         squareRing(0, 0, 10, 10),
		CRS:          "LOCAL",
		DeclaredArea: 100,
	}}
	w := doJSON(t, r, http.MethodPost, "/reconcile", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "no observations")
}

func TestReconcileEndpoint_BadJSON(t *testing.T) {
	srv, _ := newTestServer()
	r := srv.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/reconcile", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchEndpoint(t *testing.T) {
	srv, st := newTestServer()
	r := srv.SetupRouter()

	w := doJSON(t, r, http.MethodPost, "/batch", BatchRequest{Parcels: []ReconcileRequest{
		reconcileBody("P-1", 100, 10),
		reconcileBody("P-2", 0, 10), // fails, batch continues
		reconcileBody("P-3", 100, 12),
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Total   int           `json:"total"`
		Results []batchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, "reconciled", resp.Results[0].Status)
	assert.Equal(t, "failed", resp.Results[1].Status)
	assert.Equal(t, "reconciled", resp.Results[2].Status)
	assert.Len(t, st.records, 2)
}

func TestBatchEndpoint_Empty(t *testing.T) {
	srv, _ := newTestServer()
	r := srv.SetupRouter()

	w := doJSON(t, r, http.MethodPost, "/batch", BatchRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordsEndpoints(t *testing.T) {
	srv, _ := newTestServer()
	r := srv.SetupRouter()

	doJSON(t, r, http.MethodPost, "/reconcile", reconcileBody("P-1", 100, 12))

	w := doJSON(t, r, http.MethodGet, "/records?status=under_declared", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listResp struct {
		Records []model.DiscrepancyRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	require.Len(t, listResp.Records, 1)

	w = doJSON(t, r, http.MethodGet, "/records/P-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/records/P-404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/records/"+listResp.Records[0].UUID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/records/"+listResp.Records[0].UUID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportEndpoint(t *testing.T) {
	srv, _ := newTestServer()
	r := srv.SetupRouter()

	doJSON(t, r, http.MethodPost, "/reconcile", reconcileBody("P-1", 100, 12))

	w := doJSON(t, r, http.MethodGet, "/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "discrepancy_records.csv")

	body := w.Body.String()
	assert.Contains(t, body, "uuid,parcel_id,label")
	assert.Contains(t, body, "P-1")
	assert.Contains(t, body, "under_declared")

	// Status filter excludes non-matching records.
	w = doJSON(t, r, http.MethodGet, "/export?status=consistent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "P-1")
}

func TestHealthAndStats(t *testing.T) {
	srv, _ := newTestServer()
	r := srv.SetupRouter()

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	doJSON(t, r, http.MethodPost, "/reconcile", reconcileBody("P-1", 100, 12))

	w = doJSON(t, r, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats store.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.PotentialEvasion)
}
