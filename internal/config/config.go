package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type EngineConfig struct {
	// ToleranceBandPct is the |percent delta| band treated as consistent.
	ToleranceBandPct float64 `toml:"tolerance_band_pct"`
	// MinIoU is the minimum overlap required to trust a comparison.
	MinIoU float64 `toml:"min_iou"`
	// ConfidenceFloor is the minimum aggregate confidence required to trust
	// a comparison.
	ConfidenceFloor float64 `toml:"confidence_floor"`
	// RecencyHalfLifeDays halves an observation's weight per this many days
	// of age relative to the newest capture.
	RecencyHalfLifeDays float64 `toml:"recency_half_life_days"`
	// DisagreementThreshold is the area coefficient-of-variation above which
	// aggregate confidence is forced to UnreliableConfidence.
	DisagreementThreshold float64 `toml:"disagreement_threshold"`
	// UnreliableConfidence is the forced floor value.
	UnreliableConfidence float64 `toml:"unreliable_confidence"`
	// ConsensusGridSize is the per-axis resolution of the consensus grid.
	ConsensusGridSize int `toml:"consensus_grid_size"`
}

// ProjectionConfig anchors the jurisdiction's metric plane. When both values
// are zero the engine anchors at each parcel's own registered centroid.
type ProjectionConfig struct {
	OriginLat float64 `toml:"origin_lat"`
	OriginLng float64 `toml:"origin_lng"`
}

type GraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type GeocoderConfig struct {
	APIKey string `toml:"api_key"`
}

type ImageryConfig struct {
	Provider    string   `toml:"provider"` // "segmentation" or "static"
	BaseURL     string   `toml:"base_url"`
	APIKey      string   `toml:"api_key"`
	Sources     []string `toml:"sources"` // preference order, e.g. sentinel-2, landsat-8, google
	FixturePath string   `toml:"fixture_path"`
}

type ConcurrencyConfig struct {
	BatchWorkers int `toml:"batch_workers"`
}

type Config struct {
	Engine      EngineConfig      `toml:"engine"`
	Projection  ProjectionConfig  `toml:"projection"`
	Graph       GraphConfig       `toml:"graph"`
	Geocoder    GeocoderConfig    `toml:"geocoder"`
	Imagery     ImageryConfig     `toml:"imagery"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
}

// Default carries the documented engine thresholds. Load starts from these,
// so a config file only needs the keys it wants to change.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			ToleranceBandPct:      5,
			MinIoU:                0.2,
			ConfidenceFloor:       0.4,
			RecencyHalfLifeDays:   180,
			DisagreementThreshold: 0.5,
			UnreliableConfidence:  0.1,
			ConsensusGridSize:     64,
		},
		Graph: GraphConfig{
			URI: "bolt://localhost:7687",
		},
		Imagery: ImageryConfig{
			Provider: "static",
			Sources:  []string{"sentinel-2", "landsat-8", "google"},
		},
		Concurrency: ConcurrencyConfig{
			BatchWorkers: 4,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}
