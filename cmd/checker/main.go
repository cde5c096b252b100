// The checker binary runs the reconciliation pipeline over a batch of
// parcels: resolve coordinates, collect observations, reconcile, persist,
// and print a summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/gregorizeidler/IPTU-Checker/internal/config"
	"github.com/gregorizeidler/IPTU-Checker/internal/core"
	"github.com/gregorizeidler/IPTU-Checker/internal/core/geometry"
	"github.com/gregorizeidler/IPTU-Checker/internal/core/model"
	"github.com/gregorizeidler/IPTU-Checker/internal/geocode"
	"github.com/gregorizeidler/IPTU-Checker/internal/imagery"
	"github.com/gregorizeidler/IPTU-Checker/internal/observability"
	"github.com/gregorizeidler/IPTU-Checker/internal/store"
)

type parcelEntry struct {
	ID           string             `json:"id"`
	Address      string             `json:"address"`
	Ring         [][]float64        `json:"ring"`
	CRS          string             `json:"crs"`
	DeclaredArea float64            `json:"declared_area"`
	Observations []observationEntry `json:"observations"`
}

type observationEntry struct {
	Source     string      `json:"source"`
	Ring       [][]float64 `json:"ring"`
	CRS        string      `json:"crs"`
	Quality    float64     `json:"quality"`
	CapturedAt time.Time   `json:"captured_at"`
}

func main() {
	logger := observability.InitLogger("iptu-checker")

	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg("no .env file found, using defaults")
	}

	cfgPath := flag.String("config", "config/config.toml", "path to TOML config")
	parcelsPath := flag.String("parcels", "", "path to parcels JSON file (built-in samples when empty)")
	workers := flag.Int("workers", 0, "override batch worker count")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Warn().Str("path", *cfgPath).Err(err).Msg("could not load config file, using defaults")
		cfg = config.Default()
	}
	if *workers > 0 {
		cfg.Concurrency.BatchWorkers = *workers
	}

	entries, err := loadParcels(*parcelsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load parcels")
	}
	logger.Info().Int("count", len(entries)).Msg("parcels loaded")

	engine := core.NewEngine(cfg, logger)

	var st store.Store
	if gs, err := store.NewGraphStore(cfg.Graph.URI, cfg.Graph.User, cfg.Graph.Password, logger); err != nil {
		logger.Warn().Err(err).Msg("graph store unavailable, results will not be persisted")
	} else {
		st = gs
		defer gs.Close(context.Background())
		if err := gs.BuildIndices(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("failed to build indices")
		}
	}

	var provider imagery.Provider
	if cfg.Imagery.Provider != "" {
		if provider, err = imagery.NewProvider(cfg.Imagery, logger); err != nil {
			logger.Warn().Err(err).Msg("imagery provider unavailable, only inline observations will be used")
			provider = nil
		}
	}

	var geocoder geocode.Geocoder
	if cfg.Geocoder.APIKey != "" {
		if g, err := geocode.NewGoogleGeocoder(cfg.Geocoder.APIKey); err != nil {
			logger.Warn().Err(err).Msg("geocoder unavailable")
		} else {
			geocoder = g
		}
	}

	run(logger, engine, st, provider, geocoder, entries, cfg.Concurrency.BatchWorkers)
}

func run(logger zerolog.Logger, engine *core.Engine, st store.Store, provider imagery.Provider, geocoder geocode.Geocoder, entries []parcelEntry, workers int) {
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	byLabel := make(map[model.Label]int)
	failed := 0
	var deltaSum float64

	jobs := make(chan parcelEntry)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				record, err := analyze(logger, engine, st, provider, geocoder, entry)
				mu.Lock()
				if err != nil {
					failed++
				} else {
					byLabel[record.Label]++
					deltaSum += record.Metrics.PercentDelta
				}
				mu.Unlock()
			}
		}()
	}
	for _, entry := range entries {
		jobs <- entry
	}
	close(jobs)
	wg.Wait()

	succeeded := len(entries) - failed
	summary := logger.Info().
		Int("total", len(entries)).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Int("consistent", byLabel[model.LabelConsistent]).
		Int("under_declared", byLabel[model.LabelUnderDeclared]).
		Int("over_declared", byLabel[model.LabelOverDeclared]).
		Int("insufficient_confidence", byLabel[model.LabelInsufficientConfidence])
	if succeeded > 0 {
		summary = summary.Float64("avg_percent_delta", deltaSum/float64(succeeded))
	}
	summary.Msg("analysis complete")
}

func analyze(logger zerolog.Logger, engine *core.Engine, st store.Store, provider imagery.Provider, geocoder geocode.Geocoder, entry parcelEntry) (*model.DiscrepancyRecord, error) {
	parcel, err := model.NewParcel(entry.ID, toVertices(entry.Ring), entry.CRS, entry.DeclaredArea)
	if err != nil {
		logger.Warn().Str("parcel_id", entry.ID).Err(err).Msg("skipping parcel: invalid registered ring")
		return nil, err
	}
	parcel.Address = entry.Address

	observations := make([]model.Observation, 0, len(entry.Observations))
	for _, o := range entry.Observations {
		obs, err := model.NewObservation(entry.ID, o.Source, toVertices(o.Ring), o.CRS, o.Quality, o.CapturedAt)
		if err != nil {
			logger.Warn().Str("parcel_id", entry.ID).Err(err).Msg("skipping malformed inline observation")
			continue
		}
		observations = append(observations, obs)
	}

	if len(observations) == 0 && provider != nil {
		lat, lng, err := locate(geocoder, parcel)
		if err != nil {
			logger.Warn().Str("parcel_id", entry.ID).Err(err).Msg("skipping parcel: could not resolve coordinates")
			return nil, err
		}
		observations, err = provider.Observations(context.Background(), entry.ID, lat, lng)
		if err != nil {
			logger.Warn().Str("parcel_id", entry.ID).Err(err).Msg("skipping parcel: observation producer failed")
			return nil, err
		}
	}

	record, err := engine.Reconcile(parcel, observations)
	if err != nil {
		logger.Warn().Str("parcel_id", entry.ID).Err(err).Msg("skipping parcel: reconciliation failed")
		return nil, err
	}

	logger.Info().
		Str("parcel_id", record.ParcelID).
		Str("label", string(record.Label)).
		Float64("percent_delta", record.Metrics.PercentDelta).
		Float64("confidence", record.Confidence).
		Msg("parcel reconciled")

	if st != nil {
		ctx := context.Background()
		if err := st.SaveParcel(ctx, parcel); err != nil {
			logger.Warn().Str("parcel_id", entry.ID).Err(err).Msg("failed to persist parcel")
		} else if err := st.SaveObservations(ctx, observations); err != nil {
			logger.Warn().Str("parcel_id", entry.ID).Err(err).Msg("failed to persist observations")
		} else if err := st.SaveRecord(ctx, *record); err != nil {
			logger.Warn().Str("parcel_id", entry.ID).Err(err).Msg("failed to persist record")
		}
	}
	return record, nil
}

// locate resolves the area of interest handed to the imagery provider: the
// registered ring's vertex mean when the ring is geographic, otherwise the
// geocoded address. Metric rings carry meters, not degrees, so their vertex
// mean is never usable as a lat/lng.
func locate(geocoder geocode.Geocoder, parcel model.Parcel) (float64, float64, error) {
	geographic, err := geometry.IsGeographic(parcel.CRS)
	if err != nil {
		return 0, 0, err
	}
	if geographic {
		var lat, lng float64
		for _, p := range parcel.Ring {
			lng += p.X
			lat += p.Y
		}
		n := float64(len(parcel.Ring))
		return lat / n, lng / n, nil
	}
	if geocoder == nil {
		return 0, 0, fmt.Errorf("parcel %s has a metric ring and no geocoder is configured: %w", parcel.ID, geocode.ErrNoResults)
	}
	return geocoder.Locate(context.Background(), parcel.Address)
}

func toVertices(ring [][]float64) []model.Point {
	vertices := make([]model.Point, 0, len(ring))
	for _, pair := range ring {
		if len(pair) != 2 {
			continue
		}
		vertices = append(vertices, model.Point{X: pair[0], Y: pair[1]})
	}
	return vertices
}

func loadParcels(path string) ([]parcelEntry, error) {
	if path == "" {
		return sampleParcels(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []parcelEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// sampleParcels is a small São Paulo fixture set so the pipeline can run
// without a parcels file or external services.
func sampleParcels() []parcelEntry {
	captured := time.Date(2024, 6, 15, 13, 0, 0, 0, time.UTC)
	return []parcelEntry{
		{
			ID:      "SP-001",
			Address: "Av. Paulista 1578, São Paulo",
			Ring: [][]float64{
				{-46.6560, -23.5614}, {-46.6556, -23.5614},
				{-46.6556, -23.5610}, {-46.6560, -23.5610},
			},
			CRS:          "EPSG:4326",
			DeclaredArea: 1400,
			Observations: []observationEntry{
				{
					Source: "sentinel-2",
					Ring: [][]float64{
						{-46.65605, -23.56145}, {-46.65550, -23.56145},
						{-46.65550, -23.56095}, {-46.65605, -23.56095},
					},
					CRS: "EPSG:4326", Quality: 0.9, CapturedAt: captured,
				},
			},
		},
		{
			ID:      "SP-002",
			Address: "Rua Oscar Freire 827, São Paulo",
			Ring: [][]float64{
				{-46.6690, -23.5620}, {-46.6686, -23.5620},
				{-46.6686, -23.5616}, {-46.6690, -23.5616},
			},
			CRS:          "EPSG:4326",
			DeclaredArea: 1850,
			Observations: []observationEntry{
				{
					Source: "sentinel-2",
					Ring: [][]float64{
						{-46.6690, -23.5620}, {-46.6686, -23.5620},
						{-46.6686, -23.5616}, {-46.6690, -23.5616},
					},
					CRS: "EPSG:4326", Quality: 0.85, CapturedAt: captured,
				},
			},
		},
	}
}
