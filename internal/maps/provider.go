// Package maps abstracts the external directions/geocoding service. Callers
// treat provider failures as recoverable and fall back to haversine
// estimates; ErrProvider is never surfaced to API clients on ETA reads.
package maps

import (
	"context"
	"errors"

	"leaflift/internal/types"
)

var (
	// ErrProvider marks a network/quota failure of the upstream service.
	ErrProvider = errors.New("route provider unavailable")
	// ErrInvalidInput marks a malformed or missing request parameter.
	ErrInvalidInput = errors.New("invalid provider input")
)

// RouteLeg is one route alternative, normalized across providers. Legs are
// ordered by the provider-assigned alternative index.
type RouteLeg struct {
	Index           int    `json:"index"`
	DistanceText    string `json:"distance"`
	DistanceMeters  int    `json:"distanceMeters"`
	DurationText    string `json:"duration"`
	DurationSeconds int    `json:"durationSeconds"`
	Polyline        string `json:"polyline"`
}

// Prediction is a place-autocomplete result.
type Prediction struct {
	Description string  `json:"description"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	PlaceID     string  `json:"placeId,omitempty"`
}

// Address is a reverse-geocode result.
type Address struct {
	FormattedAddress string  `json:"formatted_address"`
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
}

// Provider is the routing/geocoding contract consumed by matching, the ride
// lifecycle and the live tracking loop.
type Provider interface {
	Directions(ctx context.Context, origin, destination types.Point, waypoints []types.Point) ([]RouteLeg, error)
	Autocomplete(ctx context.Context, input string, bias *types.Point) ([]Prediction, error)
	ReverseGeocode(ctx context.Context, lat, lng float64) ([]Address, error)
}
