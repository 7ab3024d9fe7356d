package maps

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	gmaps "googlemaps.github.io/maps"

	"leaflift/internal/types"
)

// GoogleProvider implements Provider on top of the Google Maps web services.
type GoogleProvider struct {
	client *gmaps.Client
}

// NewGoogleProvider creates a provider with the given API key.
func NewGoogleProvider(apiKey string) (*GoogleProvider, error) {
	client, err := gmaps.NewClient(gmaps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return &GoogleProvider{client: client}, nil
}

func (p *GoogleProvider) Directions(ctx context.Context, origin, destination types.Point, waypoints []types.Point) ([]RouteLeg, error) {
	r := &gmaps.DirectionsRequest{
		Origin:       formatLatLng(origin),
		Destination:  formatLatLng(destination),
		Mode:         gmaps.TravelModeDriving,
		Alternatives: true,
	}
	for _, w := range waypoints {
		r.Waypoints = append(r.Waypoints, formatLatLng(w))
	}

	routes, _, err := p.client.Directions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("%w: no route found", ErrProvider)
	}

	legs := make([]RouteLeg, 0, len(routes))
	for i, route := range routes {
		var meters int
		var duration time.Duration
		for _, leg := range route.Legs {
			meters += leg.Distance.Meters
			duration += leg.Duration
		}
		legs = append(legs, RouteLeg{
			Index:           i,
			DistanceText:    formatDistance(meters),
			DistanceMeters:  meters,
			DurationText:    formatDuration(duration),
			DurationSeconds: int(duration.Seconds()),
			Polyline:        route.OverviewPolyline.Points,
		})
	}
	return legs, nil
}

func (p *GoogleProvider) Autocomplete(ctx context.Context, input string, bias *types.Point) ([]Prediction, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("%w: input is required", ErrInvalidInput)
	}

	r := &gmaps.TextSearchRequest{Query: input}
	if bias != nil {
		r.Location = &gmaps.LatLng{Lat: bias.Lat, Lng: bias.Lng}
		r.Radius = 50000
	}

	resp, err := p.client.TextSearch(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	predictions := make([]Prediction, 0, len(resp.Results))
	for _, result := range resp.Results {
		description := result.Name
		if result.FormattedAddress != "" {
			description = result.Name + ", " + result.FormattedAddress
		}
		predictions = append(predictions, Prediction{
			Description: description,
			Lat:         result.Geometry.Location.Lat,
			Lng:         result.Geometry.Location.Lng,
			PlaceID:     result.PlaceID,
		})
	}
	return predictions, nil
}

func (p *GoogleProvider) ReverseGeocode(ctx context.Context, lat, lng float64) ([]Address, error) {
	r := &gmaps.GeocodingRequest{LatLng: &gmaps.LatLng{Lat: lat, Lng: lng}}

	results, err := p.client.ReverseGeocode(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	addresses := make([]Address, 0, len(results))
	for _, result := range results {
		addresses = append(addresses, Address{
			FormattedAddress: result.FormattedAddress,
			Lat:              result.Geometry.Location.Lat,
			Lng:              result.Geometry.Location.Lng,
		})
	}
	return addresses, nil
}

func formatLatLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

func formatDistance(meters int) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", meters)
	}
	return fmt.Sprintf("%.1f km", float64(meters)/1000)
}

func formatDuration(d time.Duration) string {
	minutes := int(math.Round(d.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%d min", minutes)
}
