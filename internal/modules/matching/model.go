// README: Matching domain types: published driver routes and match results.
package matching

import (
	"time"

	"leaflift/internal/types"
)

type GenderPreference string

const (
	GenderPreferenceAny        GenderPreference = "Any"
	GenderPreferenceFemaleOnly GenderPreference = "Female only"
)

// Route is a driver's published intent to drive from Source to Destination.
// Only active routes take part in matching.
type Route struct {
	DriverID         types.ID         `json:"driverId"`
	Source           types.GeoPoint   `json:"source"`
	Destination      types.GeoPoint   `json:"destination"`
	GenderPreference GenderPreference `json:"genderPreference"`
	Polyline         string           `json:"polyline,omitempty"`
	Active           bool             `json:"active"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// DriverMatch is a candidate driver for a rider's trip, annotated with how far
// the driver's route endpoints are from the rider's.
type DriverMatch struct {
	DriverID          types.ID         `json:"driverId"`
	Name              string           `json:"name"`
	Gender            string           `json:"gender"`
	Verified          bool             `json:"verified"`
	Rating            float64          `json:"rating"`
	Source            types.GeoPoint   `json:"source"`
	Destination       types.GeoPoint   `json:"destination"`
	GenderPreference  GenderPreference `json:"genderPreference"`
	PickupDistanceKm  float64          `json:"pickupDistanceKm"`
	DropoffDistanceKm float64          `json:"dropoffDistanceKm"`
	// OnRoute is set when the rider's pickup lies within the corridor of the
	// driver's route polyline.
	OnRoute bool `json:"onRoute"`
}

// NearbyRide is a searching ride surfaced to drivers.
type NearbyRide struct {
	RideID           types.ID       `json:"rideId"`
	RiderID          types.ID       `json:"riderId"`
	RiderName        string         `json:"riderName"`
	RiderVerified    bool           `json:"riderVerified"`
	Pickup           types.GeoPoint `json:"pickup"`
	Dropoff          types.GeoPoint `json:"dropoff"`
	Fare             float64        `json:"fare"`
	PickupDistanceKm float64        `json:"pickupDistanceKm"`
	CreatedAt        time.Time      `json:"createdAt"`
}
