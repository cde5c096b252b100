package model

import (
	"fmt"
	"time"
)

// Parcel is one cadastral land unit as registered by the jurisdiction.
// Immutable once constructed; the engine never mutates it.
type Parcel struct {
	ID           string  `json:"id"`
	Ring         Ring    `json:"ring"`
	CRS          string  `json:"crs"`
	DeclaredArea float64 `json:"declared_area"` // m², owner-declared
	Address      string  `json:"address,omitempty"`
}

// NewParcel validates the registered ring at the boundary. A non-positive
// declared area is accepted here and rejected later by the comparator, so
// that the failure surfaces as ErrZeroRegisteredArea rather than a
// construction error.
func NewParcel(id string, vertices []Point, crs string, declaredArea float64) (Parcel, error) {
	if id == "" {
		return Parcel{}, fmt.Errorf("parcel id is required: %w", ErrInvalidGeometry)
	}
	ring, err := NewRing(vertices)
	if err != nil {
		return Parcel{}, fmt.Errorf("parcel %s registered ring: %w", id, err)
	}
	return Parcel{ID: id, Ring: ring, CRS: crs, DeclaredArea: declaredArea}, nil
}

// Observation is one machine-derived footprint estimate for a parcel,
// supplied by the segmentation collaborator. Immutable.
type Observation struct {
	ParcelID   string    `json:"parcel_id"`
	Source     string    `json:"source"` // producer identifier, e.g. "sentinel-2"
	Ring       Ring      `json:"ring"`
	CRS        string    `json:"crs"`
	Quality    float64   `json:"quality"` // producer confidence in [0,1]
	CapturedAt time.Time `json:"captured_at"`
}

func NewObservation(parcelID, source string, vertices []Point, crs string, quality float64, capturedAt time.Time) (Observation, error) {
	if quality < 0 || quality > 1 {
		return Observation{}, fmt.Errorf("observation quality %v outside [0,1]: %w", quality, ErrInvalidGeometry)
	}
	ring, err := NewRing(vertices)
	if err != nil {
		return Observation{}, fmt.Errorf("observation ring for parcel %s: %w", parcelID, err)
	}
	return Observation{
		ParcelID:   parcelID,
		Source:     source,
		Ring:       ring,
		CRS:        crs,
		Quality:    quality,
		CapturedAt: capturedAt,
	}, nil
}
