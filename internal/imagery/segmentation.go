package imagery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/gregorizeidler/IPTU-Checker/internal/core/model"
)

// SegmentationClient talks to an external footprint-extraction service over
// JSON/HTTP. One request is issued per configured imagery source (e.g.
// sentinel-2, then landsat-8, then google), mirroring the acquisition
// fallback chain; a failing source is logged and skipped, not fatal.
type SegmentationClient struct {
	baseURL string
	apiKey  string
	sources []string
	client  *http.Client
	log     zerolog.Logger
}

func NewSegmentationClient(baseURL, apiKey string, sources []string, logger zerolog.Logger) *SegmentationClient {
	if len(sources) == 0 {
		sources = []string{"sentinel-2"}
	}
	return &SegmentationClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		sources: sources,
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     logger,
	}
}

type footprintRequest struct {
	ParcelID string  `json:"parcel_id"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Source   string  `json:"source"`
}

type footprintResponse struct {
	Observations []struct {
		Source     string      `json:"source"`
		Ring       [][]float64 `json:"ring"` // [[lng, lat], ...]
		CRS        string      `json:"crs"`
		Quality    float64     `json:"quality"`
		CapturedAt time.Time   `json:"captured_at"`
	} `json:"observations"`
}

func (c *SegmentationClient) Observations(ctx context.Context, parcelID string, lat, lng float64) ([]model.Observation, error) {
	var all []model.Observation
	for _, source := range c.sources {
		obs, err := c.fetch(ctx, parcelID, lat, lng, source)
		if err != nil {
			c.log.Warn().
				Str("parcel_id", parcelID).
				Str("source", source).
				Err(err).
				Msg("footprint source failed")
			continue
		}
		all = append(all, obs...)
	}
	return all, nil
}

func (c *SegmentationClient) fetch(ctx context.Context, parcelID string, lat, lng float64, source string) ([]model.Observation, error) {
	body, err := json.Marshal(footprintRequest{ParcelID: parcelID, Lat: lat, Lng: lng, Source: source})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/footprints", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("footprint service returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed footprintResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode footprint response: %w", err)
	}

	observations := make([]model.Observation, 0, len(parsed.Observations))
	for _, o := range parsed.Observations {
		vertices := make([]model.Point, 0, len(o.Ring))
		for _, pair := range o.Ring {
			if len(pair) != 2 {
				continue
			}
			vertices = append(vertices, model.Point{X: pair[0], Y: pair[1]})
		}
		src := o.Source
		if src == "" {
			src = source
		}
		obs, err := model.NewObservation(parcelID, src, vertices, o.CRS, o.Quality, o.CapturedAt)
		if err != nil {
			c.log.Warn().Str("parcel_id", parcelID).Str("source", src).Err(err).Msg("skipping malformed observation")
			continue
		}
		observations = append(observations, obs)
	}
	return observations, nil
}
