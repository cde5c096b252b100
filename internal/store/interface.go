package store

import (
	"context"

	"github.com/gregorizeidler/IPTU-Checker/internal/core/model"
)

// Stats summarizes persisted reconciliation outcomes.
type Stats struct {
	Total            int64            `json:"total"`
	ByLabel          map[string]int64 `json:"by_label"`
	AvgPercentDelta  float64          `json:"avg_percent_delta"`
	PotentialEvasion int64            `json:"potential_evasion"` // under_declared count
}

// Store persists parcels and discrepancy records. The engine itself never
// touches it; callers hand records over after reconciliation.
type Store interface {
	BuildIndices(ctx context.Context) error
	SaveParcel(ctx context.Context, parcel model.Parcel) error
	SaveObservations(ctx context.Context, observations []model.Observation) error
	SaveRecord(ctx context.Context, record model.DiscrepancyRecord) error
	ListRecords(ctx context.Context, status string, limit, offset int) ([]model.DiscrepancyRecord, error)
	LatestRecord(ctx context.Context, parcelID string) (*model.DiscrepancyRecord, error)
	DeleteRecord(ctx context.Context, recordUUID string) (bool, error)
	Stats(ctx context.Context) (Stats, error)
	CountRecords(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}
