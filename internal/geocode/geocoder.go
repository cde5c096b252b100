// Package geocode resolves parcel addresses to coordinates. Resolution
// happens before the engine runs; reconciliation itself never geocodes.
package geocode

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"
)

// ErrNoResults means the address could not be resolved.
var ErrNoResults = errors.New("no geocoding results")

type Geocoder interface {
	Locate(ctx context.Context, address string) (lat, lng float64, err error)
}

// GoogleGeocoder resolves addresses through the Google Geocoding API.
type GoogleGeocoder struct {
	client *maps.Client
}

func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("geocoder API key is required")
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleGeocoder{client: client}, nil
}

func (g *GoogleGeocoder) Locate(ctx context.Context, address string) (float64, float64, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return 0, 0, fmt.Errorf("geocoding %q: %w", address, err)
	}
	if len(results) == 0 {
		return 0, 0, fmt.Errorf("geocoding %q: %w", address, ErrNoResults)
	}
	loc := results[0].Geometry.Location
	return loc.Lat, loc.Lng, nil
}
