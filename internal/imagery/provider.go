// Package imagery wraps the external footprint-extraction collaborator
// behind a narrow interface: given an area of interest, produce zero or more
// observations. The engine never depends on how the polygons were derived.
package imagery

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gregorizeidler/IPTU-Checker/internal/config"
	"github.com/gregorizeidler/IPTU-Checker/internal/core/model"
)

type Provider interface {
	// Observations returns the known footprint estimates for the parcel
	// around (lat, lng). An empty slice is not an error; the engine reports
	// ErrNoObservations downstream.
	Observations(ctx context.Context, parcelID string, lat, lng float64) ([]model.Observation, error)
}

func NewProvider(cfg config.ImageryConfig, logger zerolog.Logger) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "segmentation":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("segmentation provider requires base_url")
		}
		return NewSegmentationClient(cfg.BaseURL, cfg.APIKey, cfg.Sources, logger), nil

	case "static":
		if cfg.FixturePath == "" {
			return nil, fmt.Errorf("static provider requires fixture_path")
		}
		return NewStaticProvider(cfg.FixturePath)

	default:
		return nil, fmt.Errorf("unsupported imagery provider: %s", cfg.Provider)
	}
}
