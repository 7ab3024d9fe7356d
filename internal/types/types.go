// README: Common value types shared across modules.
package types

// ID identifies a user, ride, route or notification.
type ID string

// Point is a bare lat/lng coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeoPoint is an address-tagged coordinate used for pickups, dropoffs,
// stops and route endpoints.
type GeoPoint struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// Point strips the address.
func (g GeoPoint) Point() Point {
	return Point{Lat: g.Lat, Lng: g.Lng}
}
