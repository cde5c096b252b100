package imagery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gregorizeidler/IPTU-Checker/internal/core/model"
)

// StaticProvider serves observations from a JSON fixture file keyed by
// parcel id. Used for offline runs and tests.
type StaticProvider struct {
	byParcel map[string][]model.Observation
}

type staticObservation struct {
	Source     string      `json:"source"`
	Ring       [][]float64 `json:"ring"`
	CRS        string      `json:"crs"`
	Quality    float64     `json:"quality"`
	CapturedAt time.Time   `json:"captured_at"`
}

func NewStaticProvider(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file '%s': %w", path, err)
	}

	var raw map[string][]staticObservation
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse fixture file '%s': %w", path, err)
	}

	byParcel := make(map[string][]model.Observation, len(raw))
	for parcelID, entries := range raw {
		for _, e := range entries {
			vertices := make([]model.Point, 0, len(e.Ring))
			for _, pair := range e.Ring {
				if len(pair) != 2 {
					continue
				}
				vertices = append(vertices, model.Point{X: pair[0], Y: pair[1]})
			}
			obs, err := model.NewObservation(parcelID, e.Source, vertices, e.CRS, e.Quality, e.CapturedAt)
			if err != nil {
				return nil, fmt.Errorf("fixture observation for parcel %s: %w", parcelID, err)
			}
			byParcel[parcelID] = append(byParcel[parcelID], obs)
		}
	}
	return &StaticProvider{byParcel: byParcel}, nil
}

func (p *StaticProvider) Observations(_ context.Context, parcelID string, _, _ float64) ([]model.Observation, error) {
	return p.byParcel[parcelID], nil
}
