package aggregate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/gregorizeidler/IPTU-Checker/internal/core/geometry"
	"github.com/gregorizeidler/IPTU-Checker/internal/core/model"
)

// Aggregator merges repeated observations of one parcel into a single
// consensus polygon with a confidence score. Deterministic and
// order-independent: observations are re-sorted by capture time then source
// before any weight-sensitive step.
type Aggregator struct {
	// HalfLifeDays controls recency decay: an observation this many days
	// older than the newest capture carries half the weight. Zero disables
	// decay.
	HalfLifeDays float64
	// DisagreementThreshold is the coefficient of variation of contributing
	// areas above which confidence is forced to UnreliableConfidence.
	DisagreementThreshold float64
	// UnreliableConfidence is the floor value signaling "unreliable".
	UnreliableConfidence float64
	// GridSize is the per-axis resolution of the consensus membership grid.
	GridSize int

	log zerolog.Logger
}

func New(halfLifeDays, disagreementThreshold, unreliableConfidence float64, gridSize int, logger zerolog.Logger) *Aggregator {
	if gridSize < 2 {
		gridSize = 64
	}
	return &Aggregator{
		HalfLifeDays:          halfLifeDays,
		DisagreementThreshold: disagreementThreshold,
		UnreliableConfidence:  unreliableConfidence,
		GridSize:              gridSize,
		log:                   logger,
	}
}

type contributor struct {
	obs    model.Observation
	poly   model.NormalizedPolygon
	weight float64
	area   float64
}

// Aggregate normalizes each observation (dropping failures with a warning),
// then computes the weighted-majority consensus polygon and an aggregate
// confidence penalized by area disagreement.
func (a *Aggregator) Aggregate(norm *geometry.Normalizer, observations []model.Observation) (model.AggregatedObservation, error) {
	if len(observations) == 0 {
		return model.AggregatedObservation{}, model.ErrNoObservations
	}

	var survivors []contributor
	for _, obs := range observations {
		poly, err := norm.Normalize(obs.Ring, obs.CRS)
		if err != nil {
			a.log.Warn().
				Str("parcel_id", obs.ParcelID).
				Str("source", obs.Source).
				Err(err).
				Msg("dropping observation: normalization failed")
			continue
		}
		survivors = append(survivors, contributor{obs: obs, poly: poly, area: geometry.Area(poly.Ring)})
	}
	if len(survivors) == 0 {
		return model.AggregatedObservation{}, fmt.Errorf("%d observations: %w", len(observations), model.ErrAllObservationsInvalid)
	}

	// Canonical order: capture time, then source. Makes tie-sensitive steps
	// (fallback selection) independent of input order.
	sort.Slice(survivors, func(i, j int) bool {
		ti, tj := survivors[i].obs.CapturedAt, survivors[j].obs.CapturedAt
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return survivors[i].obs.Source < survivors[j].obs.Source
	})

	newest := survivors[0].obs.CapturedAt
	for _, s := range survivors[1:] {
		if s.obs.CapturedAt.After(newest) {
			newest = s.obs.CapturedAt
		}
	}
	for i := range survivors {
		survivors[i].weight = a.weightOf(survivors[i].obs, newest)
	}

	polygon := a.consensus(survivors)
	confidence := a.confidence(survivors)

	return model.AggregatedObservation{
		Polygon:    polygon,
		Confidence: confidence,
		Count:      len(survivors),
	}, nil
}

// weightOf is the single place the weighting formula lives, so it can change
// without touching consensus or confidence math.
func (a *Aggregator) weightOf(obs model.Observation, newest time.Time) float64 {
	w := obs.Quality
	if a.HalfLifeDays > 0 {
		ageDays := newest.Sub(obs.CapturedAt).Hours() / 24
		w *= math.Pow(0.5, ageDays/a.HalfLifeDays)
	}
	return w
}

// consensus computes the representative polygon: the region covered by a
// weighted majority of contributors, sampled on a uniform grid over their
// joint bounding box and closed up as a convex hull of majority cells. A
// single contributor short-circuits to its own polygon.
func (a *Aggregator) consensus(survivors []contributor) model.NormalizedPolygon {
	if len(survivors) == 1 {
		return survivors[0].poly
	}

	min, max := geometry.BoundingBox(survivors[0].poly.Ring)
	for _, s := range survivors[1:] {
		lo, hi := geometry.BoundingBox(s.poly.Ring)
		min.X = math.Min(min.X, lo.X)
		min.Y = math.Min(min.Y, lo.Y)
		max.X = math.Max(max.X, hi.X)
		max.Y = math.Max(max.Y, hi.Y)
	}

	totalWeight := 0.0
	for _, s := range survivors {
		totalWeight += s.weight
	}

	dx := (max.X - min.X) / float64(a.GridSize)
	dy := (max.Y - min.Y) / float64(a.GridSize)
	var majority []model.Point
	for i := 0; i < a.GridSize; i++ {
		for j := 0; j < a.GridSize; j++ {
			c := model.Point{
				X: min.X + (float64(i)+0.5)*dx,
				Y: min.Y + (float64(j)+0.5)*dy,
			}
			covered := 0.0
			for _, s := range survivors {
				if geometry.Contains(s.poly.Ring, c) {
					covered += s.weight
				}
			}
			if covered*2 >= totalWeight {
				majority = append(majority, c)
			}
		}
	}

	if hull := geometry.ConvexHull(majority); hull != nil {
		return model.NormalizedPolygon{Ring: hull}
	}

	// No majority region (pathological disagreement): fall back to the
	// heaviest contributor, earliest capture winning ties via the canonical
	// sort above.
	best := survivors[0]
	for _, s := range survivors[1:] {
		if s.weight > best.weight {
			best = s
		}
	}
	return best.poly
}

// confidence is the weighted mean quality, scaled down by the coefficient of
// variation of contributing areas. Beyond DisagreementThreshold it is forced
// to the unreliable floor.
func (a *Aggregator) confidence(survivors []contributor) float64 {
	var sumW, sumWQ, sumWA float64
	for _, s := range survivors {
		sumW += s.weight
		sumWQ += s.weight * s.obs.Quality
		sumWA += s.weight * s.area
	}
	if sumW == 0 {
		return 0
	}
	meanQ := sumWQ / sumW
	meanA := sumWA / sumW

	var variance float64
	for _, s := range survivors {
		d := s.area - meanA
		variance += s.weight * d * d
	}
	variance /= sumW
	cv := 0.0
	if meanA > 0 {
		cv = math.Sqrt(variance) / meanA
	}

	if a.DisagreementThreshold > 0 && cv > a.DisagreementThreshold {
		return a.UnreliableConfidence
	}
	conf := meanQ * (1 - math.Min(cv, 1))
	return math.Max(0, math.Min(1, conf))
}
