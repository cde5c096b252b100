package server

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gregorizeidler/IPTU-Checker/internal/config"
	"github.com/gregorizeidler/IPTU-Checker/internal/core"
	"github.com/gregorizeidler/IPTU-Checker/internal/geocode"
	"github.com/gregorizeidler/IPTU-Checker/internal/imagery"
	"github.com/gregorizeidler/IPTU-Checker/internal/store"
)

type Server struct {
	Engine   *core.Engine
	Store    store.Store
	Provider imagery.Provider
	Geocoder geocode.Geocoder
	Workers  int
	log      zerolog.Logger
}

// New wires an already-constructed engine and store; tests use it with an
// in-memory store.
func New(engine *core.Engine, st store.Store, provider imagery.Provider, geocoder geocode.Geocoder, workers int, logger zerolog.Logger) *Server {
	if workers < 1 {
		workers = 1
	}
	return &Server{
		Engine:   engine,
		Store:    st,
		Provider: provider,
		Geocoder: geocoder,
		Workers:  workers,
		log:      logger,
	}
}

// NewServer builds the production server from config and environment.
func NewServer(logger zerolog.Logger) *Server {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn().Str("path", cfgPath).Err(err).Msg("could not load config file, using defaults")
		cfg = config.Default()
	}
	applyEnvOverrides(cfg)

	st, err := store.NewGraphStore(cfg.Graph.URI, cfg.Graph.User, cfg.Graph.Password, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to graph store")
	}

	var provider imagery.Provider
	if cfg.Imagery.Provider != "" {
		provider, err = imagery.NewProvider(cfg.Imagery, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("imagery provider unavailable; /reconcile requires inline observations")
		}
	}

	var geocoder geocode.Geocoder
	if cfg.Geocoder.APIKey != "" {
		g, err := geocode.NewGoogleGeocoder(cfg.Geocoder.APIKey)
		if err != nil {
			logger.Warn().Err(err).Msg("geocoder unavailable; metric parcels need inline observations")
		} else {
			geocoder = g
		}
	}

	return New(core.NewEngine(cfg, logger), st, provider, geocoder, cfg.Concurrency.BatchWorkers, logger)
}

// Simple override logic, env wins over file.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("GRAPH_URI"); v != "" {
		cfg.Graph.URI = v
	}
	if v := os.Getenv("GRAPH_USER"); v != "" {
		cfg.Graph.User = v
	}
	if v := os.Getenv("GRAPH_PASSWORD"); v != "" {
		cfg.Graph.Password = v
	}
	if v := os.Getenv("IMAGERY_PROVIDER"); v != "" {
		cfg.Imagery.Provider = v
	}
	if v := os.Getenv("IMAGERY_BASE_URL"); v != "" {
		cfg.Imagery.BaseURL = v
	}
	if v := os.Getenv("IMAGERY_API_KEY"); v != "" {
		cfg.Imagery.APIKey = v
	}
	if v := os.Getenv("GEOCODER_API_KEY"); v != "" {
		cfg.Geocoder.APIKey = v
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/health", s.Health)
	r.POST("/reconcile", s.Reconcile)
	r.POST("/batch", s.Batch)
	r.GET("/records", s.ListRecords)
	r.GET("/records/:parcel_id", s.GetRecord)
	r.DELETE("/records/:uuid", s.DeleteRecord)
	r.GET("/stats", s.GetStats)
	r.GET("/export", s.ExportRecords)

	return r
}
