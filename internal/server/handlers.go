package server

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gregorizeidler/IPTU-Checker/internal/core/geometry"
	"github.com/gregorizeidler/IPTU-Checker/internal/core/model"
	"github.com/gregorizeidler/IPTU-Checker/internal/geocode"
)

const (
	maxBatchSize = 100
	exportLimit  = 10000
)

type ParcelInput struct {
	ID           string      `json:"id"`
	Address      string      `json:"address"`
	Ring         [][]float64 `json:"ring"` // [[x, y], ...]; lng/lat for geographic CRS
	CRS          string      `json:"crs"`
	DeclaredArea float64     `json:"declared_area"`
}

type ObservationInput struct {
	Source     string      `json:"source"`
	Ring       [][]float64 `json:"ring"`
	CRS        string      `json:"crs"`
	Quality    float64     `json:"quality"`
	CapturedAt time.Time   `json:"captured_at"`
}

type ReconcileRequest struct {
	Parcel       ParcelInput        `json:"parcel"`
	Observations []ObservationInput `json:"observations"`
}

type BatchRequest struct {
	Parcels []ReconcileRequest `json:"parcels"`
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

func (req *ReconcileRequest) toModel() (model.Parcel, []model.Observation, error) {
	parcel, err := model.NewParcel(req.Parcel.ID, toVertices(req.Parcel.Ring), req.Parcel.CRS, req.Parcel.DeclaredArea)
	if err != nil {
		return model.Parcel{}, nil, err
	}
	parcel.Address = req.Parcel.Address

	observations := make([]model.Observation, 0, len(req.Observations))
	for _, o := range req.Observations {
		obs, err := model.NewObservation(parcel.ID, o.Source, toVertices(o.Ring), o.CRS, o.Quality, o.CapturedAt)
		if err != nil {
			return model.Parcel{}, nil, err
		}
		observations = append(observations, obs)
	}
	return parcel, observations, nil
}

// engineFailure reports whether the error belongs to the expected
// reconciliation taxonomy (data quality, not server fault).
func engineFailure(err error) bool {
	return errors.Is(err, model.ErrInvalidGeometry) ||
		errors.Is(err, model.ErrDegenerateGeometry) ||
		errors.Is(err, model.ErrNoObservations) ||
		errors.Is(err, model.ErrAllObservationsInvalid) ||
		errors.Is(err, model.ErrZeroRegisteredArea) ||
		errors.Is(err, geocode.ErrNoResults)
}

func (s *Server) Health(c *gin.Context) {
	total, err := s.Store.CountRecords(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"timestamp":     time.Now().UTC(),
		"database":      "connected",
		"total_records": total,
	})
}

func (s *Server) Reconcile(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	record, err := s.reconcileOne(c.Request.Context(), req)
	if err != nil {
		if engineFailure(err) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		s.log.Error().Err(err).Str("parcel_id", req.Parcel.ID).Msg("reconciliation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reconcile parcel"})
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Server) reconcileOne(ctx context.Context, req ReconcileRequest) (*model.DiscrepancyRecord, error) {
	parcel, observations, err := req.toModel()
	if err != nil {
		return nil, err
	}

	// A request without inline observations falls back to the configured
	// imagery provider.
	if len(observations) == 0 && s.Provider != nil {
		lat, lng, err := s.locate(ctx, parcel)
		if err != nil {
			return nil, err
		}
		observations, err = s.Provider.Observations(ctx, parcel.ID, lat, lng)
		if err != nil {
			return nil, err
		}
	}

	record, err := s.Engine.Reconcile(parcel, observations)
	if err != nil {
		return nil, err
	}

	if err := s.Store.SaveParcel(ctx, parcel); err != nil {
		return nil, err
	}
	if err := s.Store.SaveObservations(ctx, observations); err != nil {
		return nil, err
	}
	if err := s.Store.SaveRecord(ctx, *record); err != nil {
		return nil, err
	}
	return record, nil
}

// locate resolves the area of interest handed to the imagery provider: the
// registered ring's vertex mean when the ring is geographic, otherwise the
// geocoded address. Metric rings carry meters, not degrees, so their vertex
// mean is never usable as a lat/lng.
func (s *Server) locate(ctx context.Context, parcel model.Parcel) (float64, float64, error) {
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
	if s.Geocoder == nil {
		return 0, 0, fmt.Errorf("parcel %s has a metric ring and no geocoder is configured: %w", parcel.ID, geocode.ErrNoResults)
	}
	return s.Geocoder.Locate(ctx, parcel.Address)
}

type batchResult struct {
	ParcelID string                   `json:"parcel_id"`
	Status   string                   `json:"status"`
	Error    string                   `json:"error,omitempty"`
	Record   *model.DiscrepancyRecord `json:"record,omitempty"`
}

// Batch reconciles up to maxBatchSize parcels concurrently. Per-parcel
// failures are reported in place, never aborting the batch.
func (s *Server) Batch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if len(req.Parcels) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No parcels in batch"})
		return
	}
	if len(req.Parcels) > maxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Maximum 100 parcels per batch"})
		return
	}

	results := make([]batchResult, len(req.Parcels))
	sem := make(chan struct{}, s.Workers)
	var wg sync.WaitGroup

	// Workers must not touch the gin context; only the request context
	// crosses the goroutine boundary.
	ctx := c.Request.Context()
	for i, item := range req.Parcels {
		wg.Add(1)
		go func(i int, item ReconcileRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			record, err := s.reconcileOne(ctx, item)
			if err != nil {
				s.log.Warn().Err(err).Str("parcel_id", item.Parcel.ID).Msg("skipping parcel in batch")
				results[i] = batchResult{ParcelID: item.Parcel.ID, Status: "failed", Error: err.Error()}
				return
			}
			results[i] = batchResult{ParcelID: item.Parcel.ID, Status: "reconciled", Record: record}
		}(i, item)
	}
	wg.Wait()

	c.JSON(http.StatusOK, gin.H{
		"total":   len(req.Parcels),
		"results": results,
	})
}

func (s *Server) ListRecords(c *gin.Context) {
	status := c.Query("status")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > 1000 {
		limit = 100
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	records, err := s.Store.ListRecords(c.Request.Context(), status, limit, offset)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) GetRecord(c *gin.Context) {
	parcelID := c.Param("parcel_id")
	record, err := s.Store.LatestRecord(c.Request.Context(), parcelID)
	if err != nil {
		s.log.Error().Err(err).Str("parcel_id", parcelID).Msg("failed to fetch record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve record"})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No record for parcel " + parcelID})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) DeleteRecord(c *gin.Context) {
	recordUUID := c.Param("uuid")
	deleted, err := s.Store.DeleteRecord(c.Request.Context(), recordUUID)
	if err != nil {
		s.log.Error().Err(err).Str("uuid", recordUUID).Msg("failed to delete record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete record"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record " + recordUUID + " not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "uuid": recordUUID})
}

// ExportRecords streams persisted records as a CSV download, optionally
// filtered by status.
func (s *Server) ExportRecords(c *gin.Context) {
	records, err := s.Store.ListRecords(c.Request.Context(), c.Query("status"), exportLimit, 0)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to export records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export records"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="discrepancy_records.csv"`)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{
		"uuid", "parcel_id", "label", "confidence",
		"registered_area", "observed_area", "area_delta", "percent_delta",
		"iou", "boundary_deviation", "reconciled_at",
	})
	for _, r := range records {
		_ = w.Write([]string{
			r.UUID,
			r.ParcelID,
			string(r.Label),
			strconv.FormatFloat(r.Confidence, 'f', -1, 64),
			strconv.FormatFloat(r.Metrics.RegisteredArea, 'f', -1, 64),
			strconv.FormatFloat(r.Metrics.ObservedArea, 'f', -1, 64),
			strconv.FormatFloat(r.Metrics.AreaDelta, 'f', -1, 64),
			strconv.FormatFloat(r.Metrics.PercentDelta, 'f', -1, 64),
			strconv.FormatFloat(r.Metrics.IoU, 'f', -1, 64),
			strconv.FormatFloat(r.Metrics.BoundaryDeviation, 'f', -1, 64),
			r.ReconciledAt.Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		s.log.Error().Err(err).Msg("failed to write export")
	}
}

func (s *Server) GetStats(c *gin.Context) {
	stats, err := s.Store.Stats(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to compute stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute statistics"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
