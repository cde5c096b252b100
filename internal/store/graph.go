package store

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/rs/zerolog"

	"github.com/gregorizeidler/IPTU-Checker/internal/core/model"
)

// GraphStore persists the cadastral graph (Parcel and Discrepancy nodes) in
// Memgraph or Neo4j over bolt.
type GraphStore struct {
	Driver neo4j.DriverWithContext
	log    zerolog.Logger
}

func NewGraphStore(uri, username, password string, logger zerolog.Logger) (*GraphStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, err
	}

	if err := driver.VerifyConnectivity(context.Background()); err != nil {
		return nil, err
	}

	logger.Info().Str("uri", uri).Msg("connected to graph store")
	return &GraphStore{Driver: driver, log: logger}, nil
}

func (s *GraphStore) Close(ctx context.Context) error {
	return s.Driver.Close(ctx)
}

func (s *GraphStore) executeQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.Driver, query, params, neo4j.EagerResultTransformer)
	if err != nil {
		return neo4j.EagerResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return *result, nil
}

func (s *GraphStore) BuildIndices(ctx context.Context) error {
	queries := []string{
		"CREATE INDEX ON :Parcel(id);",
		"CREATE INDEX ON :Observation(parcel_id);",
		"CREATE INDEX ON :Discrepancy(uuid);",
		"CREATE INDEX ON :Discrepancy(label);",
	}

	for _, q := range queries {
		if _, err := s.executeQuery(ctx, q, nil); err != nil {
			// Index may already exist; Memgraph errors instead of no-op.
			s.log.Warn().Str("query", q).Err(err).Msg("failed to create index")
		}
	}
	return nil
}

func (s *GraphStore) SaveParcel(ctx context.Context, parcel model.Parcel) error {
	// Rings are stored flattened [x0, y0, x1, y1, ...]; bolt has no nested
	// list-of-pairs property type.
	ring := make([]float64, 0, len(parcel.Ring)*2)
	for _, p := range parcel.Ring {
		ring = append(ring, p.X, p.Y)
	}

	_, err := s.executeQuery(ctx, saveParcelQuery, map[string]interface{}{
		"id":            parcel.ID,
		"crs":           parcel.CRS,
		"declared_area": parcel.DeclaredArea,
		"address":       parcel.Address,
		"ring":          ring,
	})
	return err
}

func (s *GraphStore) SaveObservations(ctx context.Context, observations []model.Observation) error {
	for _, obs := range observations {
		ring := make([]float64, 0, len(obs.Ring)*2)
		for _, p := range obs.Ring {
			ring = append(ring, p.X, p.Y)
		}
		_, err := s.executeQuery(ctx, saveObservationQuery, map[string]interface{}{
			"parcel_id":   obs.ParcelID,
			"source":      obs.Source,
			"crs":         obs.CRS,
			"quality":     obs.Quality,
			"ring":        ring,
			"captured_at": obs.CapturedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *GraphStore) SaveRecord(ctx context.Context, record model.DiscrepancyRecord) error {
	_, err := s.executeQuery(ctx, saveRecordQuery, map[string]interface{}{
		"uuid":               record.UUID,
		"parcel_id":          record.ParcelID,
		"label":              string(record.Label),
		"confidence":         record.Confidence,
		"registered_area":    record.Metrics.RegisteredArea,
		"observed_area":      record.Metrics.ObservedArea,
		"area_delta":         record.Metrics.AreaDelta,
		"percent_delta":      record.Metrics.PercentDelta,
		"iou":                record.Metrics.IoU,
		"boundary_deviation": record.Metrics.BoundaryDeviation,
		"reconciled_at":      record.ReconciledAt.Format(time.RFC3339Nano),
	})
	return err
}

func (s *GraphStore) ListRecords(ctx context.Context, status string, limit, offset int) ([]model.DiscrepancyRecord, error) {
	result, err := s.executeQuery(ctx, listRecordsQuery, map[string]interface{}{
		"status": status,
		"limit":  limit,
		"offset": offset,
	})
	if err != nil {
		return nil, err
	}

	records := make([]model.DiscrepancyRecord, 0, len(result.Records))
	for _, rec := range result.Records {
		node, ok := rec.Get("r")
		if !ok {
			continue
		}
		n, ok := node.(dbtype.Node)
		if !ok {
			continue
		}
		records = append(records, recordFromProps(n.Props))
	}
	return records, nil
}

func (s *GraphStore) LatestRecord(ctx context.Context, parcelID string) (*model.DiscrepancyRecord, error) {
	result, err := s.executeQuery(ctx, latestRecordQuery, map[string]interface{}{
		"parcel_id": parcelID,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, nil
	}
	node, ok := result.Records[0].Get("r")
	if !ok {
		return nil, nil
	}
	n, ok := node.(dbtype.Node)
	if !ok {
		return nil, nil
	}
	record := recordFromProps(n.Props)
	return &record, nil
}

func (s *GraphStore) DeleteRecord(ctx context.Context, recordUUID string) (bool, error) {
	result, err := s.executeQuery(ctx, deleteRecordQuery, map[string]interface{}{
		"uuid": recordUUID,
	})
	if err != nil {
		return false, err
	}
	if len(result.Records) == 0 {
		return false, nil
	}
	deleted, _ := result.Records[0].Get("deleted")
	n, _ := deleted.(int64)
	return n > 0, nil
}

func (s *GraphStore) CountRecords(ctx context.Context) (int64, error) {
	result, err := s.executeQuery(ctx, countRecordsQuery, nil)
	if err != nil {
		return 0, err
	}
	if len(result.Records) == 0 {
		return 0, nil
	}
	total, _ := result.Records[0].Get("total")
	n, _ := total.(int64)
	return n, nil
}

func (s *GraphStore) Stats(ctx context.Context) (Stats, error) {
	result, err := s.executeQuery(ctx, labelStatsQuery, nil)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{ByLabel: make(map[string]int64)}
	var weightedDelta float64
	for _, rec := range result.Records {
		labelVal, _ := rec.Get("label")
		countVal, _ := rec.Get("n")
		avgVal, _ := rec.Get("avg_delta")

		label, _ := labelVal.(string)
		n, _ := countVal.(int64)
		avg, _ := avgVal.(float64)

		stats.ByLabel[label] = n
		stats.Total += n
		weightedDelta += float64(n) * avg
	}
	if stats.Total > 0 {
		stats.AvgPercentDelta = weightedDelta / float64(stats.Total)
	}
	stats.PotentialEvasion = stats.ByLabel[string(model.LabelUnderDeclared)]
	return stats, nil
}

func recordFromProps(props map[string]interface{}) model.DiscrepancyRecord {
	str := func(key string) string {
		v, _ := props[key].(string)
		return v
	}
	num := func(key string) float64 {
		switch v := props[key].(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		}
		return 0
	}

	reconciledAt, _ := time.Parse(time.RFC3339Nano, str("reconciled_at"))
	return model.DiscrepancyRecord{
		UUID:       str("uuid"),
		ParcelID:   str("parcel_id"),
		Label:      model.Label(str("label")),
		Confidence: num("confidence"),
		Metrics: model.ComparisonMetrics{
			RegisteredArea:    num("registered_area"),
			ObservedArea:      num("observed_area"),
			AreaDelta:         num("area_delta"),
			PercentDelta:      num("percent_delta"),
			IoU:               num("iou"),
			BoundaryDeviation: num("boundary_deviation"),
		},
		ReconciledAt: reconciledAt,
	}
}
