package imagery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregorizeidler/IPTU-Checker/internal/config"
)

const fixtureJSON = `{
	"SP-001": [
		{
			"source": "sentinel-2",
			"ring": [[-46.656, -23.5614], [-46.6556, -23.5614], [-46.6556, -23.561], [-46.656, -23.561]],
			"crs": "EPSG:4326",
			"quality": 0.9,
			"captured_at": "2024-06-15T13:00:00Z"
		}
	]
}`

func TestStaticProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.json")
	require.NoError(t, os.WriteFile(path, []byte(fixtureJSON), 0o644))

	p, err := NewStaticProvider(path)
	require.NoError(t, err)

	obs, err := p.Observations(context.Background(), "SP-001", -23.5612, -46.6558)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "sentinel-2", obs[0].Source)
	assert.Equal(t, 0.9, obs[0].Quality)
	assert.Len(t, obs[0].Ring, 4)

	obs, err = p.Observations(context.Background(), "unknown", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestSegmentationClient(t *testing.T) {
	var requestedSources []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/footprints", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req footprintRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requestedSources = append(requestedSources, req.Source)

		if req.Source == "landsat-8" {
			// A failing source is skipped, not fatal.
			http.Error(w, "no scenes", http.StatusBadGateway)
			return
		}

		resp := map[string]any{
			"observations": []map[string]any{
				{
					"source":      req.Source,
					"ring":        [][]float64{{0, 0}, {0.0001, 0}, {0.0001, 0.0001}, {0, 0.0001}},
					"crs":         "EPSG:4326",
					"quality":     0.8,
					"captured_at": "2024-06-15T13:00:00Z",
				},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := NewSegmentationClient(srv.URL, "test-key", []string{"sentinel-2", "landsat-8"}, zerolog.Nop())
	obs, err := client.Observations(context.Background(), "SP-001", -23.56, -46.65)
	require.NoError(t, err)

	assert.Equal(t, []string{"sentinel-2", "landsat-8"}, requestedSources)
	require.Len(t, obs, 1)
	assert.Equal(t, "sentinel-2", obs[0].Source)
	assert.Equal(t, "SP-001", obs[0].ParcelID)
}

func TestNewProvider(t *testing.T) {
	_, err := NewProvider(config.ImageryConfig{Provider: "segmentation"}, zerolog.Nop())
	assert.Error(t, err, "segmentation without base_url")

	_, err = NewProvider(config.ImageryConfig{Provider: "unknown"}, zerolog.Nop())
	assert.Error(t, err)

	p, err := NewProvider(config.ImageryConfig{
		Provider: "segmentation",
		BaseURL:  "http://localhost:9000",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, p)
}
