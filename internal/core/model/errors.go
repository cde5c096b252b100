package model

import "errors"

// Expected, recoverable-by-caller failure conditions. A batch run matches on
// these with errors.Is and logs-and-skips the parcel; none of them is fatal
// to the process.
var (
	// ErrInvalidGeometry marks a malformed input polygon (caller data quality).
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrDegenerateGeometry marks a polygon that collapses under reprojection
	// or repair.
	ErrDegenerateGeometry = errors.New("degenerate geometry")

	// ErrNoObservations marks an empty observation set.
	ErrNoObservations = errors.New("no observations")

	// ErrAllObservationsInvalid marks a set in which every observation failed
	// normalization.
	ErrAllObservationsInvalid = errors.New("all observations invalid")

	// ErrZeroRegisteredArea marks a cadastral record declaring a non-positive
	// area.
	ErrZeroRegisteredArea = errors.New("zero registered area")
)
