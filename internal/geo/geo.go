// Package geo contains pure geographic computation helpers: great-circle
// distance, fallback ETA estimation and polyline corridor math.
package geo

import (
	"math"

	"leaflift/internal/types"
)

const earthRadiusKm = 6371.0

// DefaultAvgSpeedKmh is the assumed city driving speed used when the route
// provider cannot supply a duration.
const DefaultAvgSpeedKmh = 25.0

// HaversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// DistanceKm is HaversineKm over Point values.
func DistanceKm(a, b types.Point) float64 {
	return HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// FallbackEtaMinutes estimates travel time in whole minutes from distance at
// the given average speed. Any non-zero distance reports at least 1 minute so
// short hops never show an ETA of zero.
func FallbackEtaMinutes(distanceKm, avgSpeedKmh float64) int {
	if distanceKm <= 0 {
		return 0
	}
	minutes := int(math.Round(distanceKm / avgSpeedKmh * 60))
	if minutes < 1 {
		return 1
	}
	return minutes
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// DecodePolyline decodes a Google-encoded polyline into coordinates.
func DecodePolyline(encoded string) []types.Point {
	var points []types.Point
	index, lat, lng := 0, 0, 0

	for index < len(encoded) {
		var b, shift, result int
		for {
			b = int(encoded[index]) - 63
			index++
			result |= (b & 0x1f) << shift
			shift += 5
			if b < 0x20 {
				break
			}
		}
		dLat := result >> 1
		if result&1 != 0 {
			dLat = ^dLat
		}
		lat += dLat

		shift, result = 0, 0
		for {
			b = int(encoded[index]) - 63
			index++
			result |= (b & 0x1f) << shift
			shift += 5
			if b < 0x20 {
				break
			}
		}
		dLng := result >> 1
		if result&1 != 0 {
			dLng = ^dLng
		}
		lng += dLng

		points = append(points, types.Point{Lat: float64(lat) / 1e5, Lng: float64(lng) / 1e5})
	}

	return points
}

// PointToSegmentKm returns the distance from p to the segment a-b. The
// projection is done in degree space, which is fine at city scale.
func PointToSegmentKm(p, a, b types.Point) float64 {
	abLat := b.Lat - a.Lat
	abLng := b.Lng - a.Lng

	lenSq := abLat*abLat + abLng*abLng
	if lenSq == 0 {
		return DistanceKm(p, a)
	}

	t := ((p.Lat-a.Lat)*abLat + (p.Lng-a.Lng)*abLng) / lenSq
	t = math.Max(0, math.Min(1, t))

	closest := types.Point{Lat: a.Lat + t*abLat, Lng: a.Lng + t*abLng}
	return DistanceKm(p, closest)
}

// PointToPolylineKm returns the minimum distance from p to any segment of the
// polyline. An empty or single-point polyline yields +Inf.
func PointToPolylineKm(p types.Point, line []types.Point) float64 {
	if len(line) == 0 {
		return math.Inf(1)
	}
	if len(line) == 1 {
		return DistanceKm(p, line[0])
	}
	minKm := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		if d := PointToSegmentKm(p, line[i], line[i+1]); d < minKm {
			minKm = d
		}
	}
	return minKm
}

// SortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function.
func SortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
