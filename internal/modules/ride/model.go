// README: Ride aggregate and status definitions.
package ride

import (
	"time"

	"leaflift/internal/types"
)

type Status string

const (
	StatusSearching  Status = "SEARCHING"
	StatusAccepted   Status = "ACCEPTED"
	StatusArrived    Status = "ARRIVED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCanceled   Status = "CANCELED"
)

type StopStatus string

const (
	StopPending StopStatus = "PENDING"
	StopReached StopStatus = "REACHED"
	StopSkipped StopStatus = "SKIPPED"
)

type VehicleCategory string

const (
	VehicleBike   VehicleCategory = "BIKE"
	VehicleAuto   VehicleCategory = "AUTO"
	VehicleCar    VehicleCategory = "CAR"
	VehicleBigCar VehicleCategory = "BIG_CAR"
)

// Stop is a multi-stop waypoint. Status only ever moves PENDING→REACHED or
// PENDING→SKIPPED.
type Stop struct {
	Address   string     `json:"address"`
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	Order     int        `json:"order"`
	Status    StopStatus `json:"status"`
	ReachedAt *time.Time `json:"reachedAt,omitempty"`
}

// Location is a last-known position, overwritten in place.
type Location struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Ride struct {
	ID       types.ID  `json:"id"`
	UserID   types.ID  `json:"userId"`
	DriverID *types.ID `json:"driverId,omitempty"`

	Status        Status `json:"status"`
	StatusVersion int    `json:"-"`

	Pickup  types.GeoPoint `json:"pickup"`
	Dropoff types.GeoPoint `json:"dropoff"`

	Stops            []Stop `json:"stops"`
	CurrentStopIndex int    `json:"currentStopIndex"`

	Fare            float64         `json:"fare"`
	Distance        string          `json:"distance"`
	Duration        string          `json:"duration"`
	VehicleCategory VehicleCategory `json:"vehicleCategory"`

	DriverLocation *Location `json:"driverLocation,omitempty"`
	RiderLocation  *Location `json:"riderLocation,omitempty"`

	EtaToPickup  string `json:"etaToPickup,omitempty"`
	EtaToDropoff string `json:"etaToDropoff,omitempty"`

	// OriginalEtaMinutes is captured once at the ACCEPTED transition and is
	// the baseline for delay detection.
	OriginalEtaMinutes *int       `json:"originalEtaMinutes,omitempty"`
	LastDelayAlertAt   *time.Time `json:"lastDelayAlertAt,omitempty"`

	OTP         string `json:"-"`
	OTPVerified bool   `json:"otpVerified"`

	CO2Emissions float64 `json:"co2Emissions"`
	CO2Saved     float64 `json:"co2Saved"`
	IsPooled     bool    `json:"isPooled"`

	CreatedAt   time.Time  `json:"createdAt"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
	ArrivedAt   *time.Time `json:"arrivedAt,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CanceledAt  *time.Time `json:"canceledAt,omitempty"`
}

// AllowedTransitions represents the ride state flow as code. Cancellation is
// allowed from every non-terminal state.
var AllowedTransitions = map[Status][]Status{
	StatusSearching:  {StatusAccepted, StatusCanceled},
	StatusAccepted:   {StatusArrived, StatusCanceled},
	StatusArrived:    {StatusInProgress, StatusCanceled},
	StatusInProgress: {StatusCompleted, StatusCanceled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a ride in this status can never change again.
func Terminal(s Status) bool {
	return s == StatusCompleted || s == StatusCanceled
}

// EtaTarget returns the point the live ETA is measured against: the pickup
// while the driver is en route, the dropoff once the trip has started. The
// second return is false for statuses that are not tracked.
func (r *Ride) EtaTarget() (types.Point, bool) {
	switch r.Status {
	case StatusAccepted, StatusArrived:
		return r.Pickup.Point(), true
	case StatusInProgress:
		return r.Dropoff.Point(), true
	default:
		return types.Point{}, false
	}
}
