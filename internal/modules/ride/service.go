// README: Ride lifecycle service: state transitions, OTP gate, stop
// progression, location and ETA writes.
package ride

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"leaflift/internal/geo"
	"leaflift/internal/maps"
	"leaflift/internal/modules/notification"
	"leaflift/internal/types"
)

var (
	ErrNotFound       = errors.New("ride not found")
	ErrBadRequest     = errors.New("bad request")
	ErrConflict       = errors.New("ride state conflict")
	ErrInvalidState   = errors.New("invalid status transition")
	ErrOTPMismatch    = errors.New("otp mismatch")
	ErrStopNotCurrent = errors.New("stop is not the current stop")
)

// TransitionError reports a rejected status change together with the state
// the ride was actually in, so the caller can resynchronize its view.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition ride from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidState }

// Actor distinguishes which party a location update belongs to.
type Actor string

const (
	ActorDriver Actor = "driver"
	ActorRider  Actor = "rider"
)

// Store is the ride persistence contract. Status and stop writes carry a
// from-state plus version guard; the returned bool reports whether the write
// was claimed, so lost races surface as ErrConflict rather than silent
// overwrites.
type Store interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	ListByUser(ctx context.Context, userID types.ID) ([]*Ride, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Ride, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, driverID *types.ID) (bool, error)
	// SetOriginalEta is first-write-wins: once a baseline exists it is never
	// overwritten.
	SetOriginalEta(ctx context.Context, id types.ID, minutes int) error
	UpdateStops(ctx context.Context, id types.ID, stops []Stop, currentIndex, version int) (bool, error)
	UpdateLocation(ctx context.Context, id types.ID, actor Actor, loc Location) error
	UpdateEta(ctx context.Context, id types.ID, etaToPickup, etaToDropoff string) error
	// MarkDelayAlert records a delay alert timestamp iff no alert was recorded
	// within the cooldown window; the bool reports whether this caller claimed
	// the alert.
	MarkDelayAlert(ctx context.Context, id types.ID, at time.Time, cooldown time.Duration) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID types.ID, title, message string, typ notification.Type) error
}

type Dispatcher interface {
	EmitToRide(rideID types.ID, event string, payload any)
}

type Service struct {
	store      Store
	provider   maps.Provider
	notifier   Notifier
	dispatcher Dispatcher
	log        *zap.Logger
}

func NewService(store Store, provider maps.Provider, notifier Notifier, dispatcher Dispatcher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, provider: provider, notifier: notifier, dispatcher: dispatcher, log: log}
}

// co2KgPerKm holds per-category emission estimates; the CAR figure doubles as
// the baseline for savings.
var co2KgPerKm = map[VehicleCategory]float64{
	VehicleBike:   0.05,
	VehicleAuto:   0.08,
	VehicleCar:    0.15,
	VehicleBigCar: 0.22,
}

type CreateCommand struct {
	UserID          types.ID
	Pickup          types.GeoPoint
	Dropoff         types.GeoPoint
	Stops           []types.GeoPoint
	Fare            float64
	Distance        string
	Duration        string
	VehicleCategory VehicleCategory
	IsPooled        bool
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	if cmd.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrBadRequest)
	}

	category := cmd.VehicleCategory
	if category == "" {
		category = VehicleCar
	}
	if _, ok := co2KgPerKm[category]; !ok {
		return nil, fmt.Errorf("%w: unknown vehicle category %q", ErrBadRequest, category)
	}

	stops := make([]Stop, len(cmd.Stops))
	for i, w := range cmd.Stops {
		stops[i] = Stop{Address: w.Address, Lat: w.Lat, Lng: w.Lng, Order: i, Status: StopPending}
	}

	tripKm := geo.DistanceKm(cmd.Pickup.Point(), cmd.Dropoff.Point())
	emissions := co2KgPerKm[category] * tripKm
	saved := (co2KgPerKm[VehicleCar] - co2KgPerKm[category]) * tripKm
	if saved < 0 {
		saved = 0
	}
	if cmd.IsPooled {
		saved += emissions / 2
	}

	r := &Ride{
		ID:               types.ID(uuid.NewString()),
		UserID:           cmd.UserID,
		Status:           StatusSearching,
		Pickup:           cmd.Pickup,
		Dropoff:          cmd.Dropoff,
		Stops:            stops,
		CurrentStopIndex: 0,
		Fare:             cmd.Fare,
		Distance:         cmd.Distance,
		Duration:         cmd.Duration,
		VehicleCategory:  category,
		OTP:              newOTP(),
		CO2Emissions:     emissions,
		CO2Saved:         saved,
		IsPooled:         cmd.IsPooled,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	s.log.Info("ride created",
		zap.String("ride_id", string(r.ID)),
		zap.String("user_id", string(r.UserID)),
		zap.Int("stops", len(r.Stops)))
	return r, nil
}

type AcceptCommand struct {
	RideID         types.ID
	DriverID       types.ID
	DriverLocation types.Point
}

// Accept moves a SEARCHING ride to ACCEPTED, records the driver and captures
// the original ETA baseline used for delay detection.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Ride, error) {
	if cmd.DriverID == "" {
		return nil, fmt.Errorf("%w: driverId is required", ErrBadRequest)
	}
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(r.Status, StatusAccepted) {
		return nil, &TransitionError{From: r.Status, To: StatusAccepted}
	}

	etaMin := s.etaMinutes(ctx, cmd.DriverLocation, r.Pickup.Point())

	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, StatusAccepted, r.StatusVersion, &cmd.DriverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	if err := s.store.SetOriginalEta(ctx, r.ID, etaMin); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := s.store.UpdateLocation(ctx, r.ID, ActorDriver, Location{Lat: cmd.DriverLocation.Lat, Lng: cmd.DriverLocation.Lng, UpdatedAt: now}); err != nil {
		return nil, err
	}
	etaText := fmt.Sprintf("%d min", etaMin)
	if err := s.store.UpdateEta(ctx, r.ID, etaText, r.EtaToDropoff); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, r.UserID, "Driver Found",
			fmt.Sprintf("Your driver is on the way. ETA: %s.", etaText), notification.TypeRide)
	}
	if s.dispatcher != nil {
		s.dispatcher.EmitToRide(r.ID, "ride:accepted", map[string]any{
			"rideId":      r.ID,
			"driverId":    cmd.DriverID,
			"etaToPickup": etaText,
		})
	}
	s.log.Info("ride accepted",
		zap.String("ride_id", string(r.ID)),
		zap.String("driver_id", string(cmd.DriverID)),
		zap.Int("original_eta_min", etaMin))
	return s.store.Get(ctx, r.ID)
}

type ArriveCommand struct {
	RideID types.ID
}

func (s *Service) Arrive(ctx context.Context, cmd ArriveCommand) (*Ride, error) {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(r.Status, StatusArrived) {
		return nil, &TransitionError{From: r.Status, To: StatusArrived}
	}
	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, StatusArrived, r.StatusVersion, r.DriverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, r.UserID, "Driver Arrived",
			"Your driver has arrived at the pickup point.", notification.TypeRide)
	}
	return s.store.Get(ctx, r.ID)
}

type StartCommand struct {
	RideID types.ID
	OTP    string
}

// Start verifies the pickup OTP and moves the ride to IN_PROGRESS. On a
// mismatch the ride is left unchanged and the caller may retry.
func (s *Service) Start(ctx context.Context, cmd StartCommand) (*Ride, error) {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(r.Status, StatusInProgress) {
		return nil, &TransitionError{From: r.Status, To: StatusInProgress}
	}
	if cmd.OTP == "" || cmd.OTP != r.OTP {
		return nil, ErrOTPMismatch
	}
	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, StatusInProgress, r.StatusVersion, r.DriverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	return s.store.Get(ctx, r.ID)
}

type CompleteCommand struct {
	RideID types.ID
}

func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) (*Ride, error) {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(r.Status, StatusCompleted) {
		return nil, &TransitionError{From: r.Status, To: StatusCompleted}
	}
	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, StatusCompleted, r.StatusVersion, r.DriverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, r.UserID, "Ride Completed",
			"You have reached your destination. Thanks for riding with us.", notification.TypeRide)
	}
	if s.dispatcher != nil {
		s.dispatcher.EmitToRide(r.ID, "ride:completed", map[string]any{"rideId": r.ID})
	}
	return s.store.Get(ctx, r.ID)
}

type CancelCommand struct {
	RideID types.ID
	Actor  Actor
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Ride, error) {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(r.Status, StatusCanceled) {
		return nil, &TransitionError{From: r.Status, To: StatusCanceled}
	}
	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, StatusCanceled, r.StatusVersion, r.DriverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	if s.notifier != nil && cmd.Actor == ActorDriver {
		_ = s.notifier.Notify(ctx, r.UserID, "Ride Canceled",
			"Your driver canceled the ride. You can book another one.", notification.TypeRide)
	}
	if s.dispatcher != nil {
		s.dispatcher.EmitToRide(r.ID, "ride:canceled", map[string]any{"rideId": r.ID, "by": cmd.Actor})
	}
	return s.store.Get(ctx, r.ID)
}

// ReachStop marks the current stop as REACHED and advances the cursor.
func (s *Service) ReachStop(ctx context.Context, rideID types.ID, index int) (*Ride, error) {
	return s.advanceStop(ctx, rideID, index, StopReached)
}

// SkipStop marks the current stop as SKIPPED and advances the cursor.
func (s *Service) SkipStop(ctx context.Context, rideID types.ID, index int) (*Ride, error) {
	return s.advanceStop(ctx, rideID, index, StopSkipped)
}

func (s *Service) advanceStop(ctx context.Context, rideID types.ID, index int, to StopStatus) (*Ride, error) {
	r, err := s.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusInProgress {
		return nil, fmt.Errorf("%w: stops can only be updated while the ride is %s (currently %s)",
			ErrInvalidState, StatusInProgress, r.Status)
	}
	if index != r.CurrentStopIndex || index >= len(r.Stops) {
		return nil, ErrStopNotCurrent
	}

	stops := make([]Stop, len(r.Stops))
	copy(stops, r.Stops)
	stops[index].Status = to
	if to == StopReached {
		now := time.Now().UTC()
		stops[index].ReachedAt = &now
	}

	ok, err := s.store.UpdateStops(ctx, r.ID, stops, r.CurrentStopIndex+1, r.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	if s.dispatcher != nil {
		s.dispatcher.EmitToRide(r.ID, "ride:stop-update", map[string]any{
			"rideId":           r.ID,
			"stopIndex":        index,
			"stopStatus":       to,
			"currentStopIndex": r.CurrentStopIndex + 1,
		})
	}
	return s.store.Get(ctx, r.ID)
}

type LocationCommand struct {
	RideID   types.ID
	Actor    Actor
	Position types.Point
}

// UpdateLocation overwrites the actor's last-known position. Writes are
// last-write-wins; no history is kept.
func (s *Service) UpdateLocation(ctx context.Context, cmd LocationCommand) error {
	if cmd.Actor != ActorDriver && cmd.Actor != ActorRider {
		return fmt.Errorf("%w: actor must be driver or rider", ErrBadRequest)
	}
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if Terminal(r.Status) {
		return fmt.Errorf("%w: ride is %s", ErrInvalidState, r.Status)
	}
	loc := Location{Lat: cmd.Position.Lat, Lng: cmd.Position.Lng, UpdatedAt: time.Now().UTC()}
	if err := s.store.UpdateLocation(ctx, r.ID, cmd.Actor, loc); err != nil {
		return err
	}
	if cmd.Actor == ActorDriver && s.dispatcher != nil {
		s.dispatcher.EmitToRide(r.ID, "driver:location", map[string]any{
			"rideId": r.ID,
			"lat":    loc.Lat,
			"lng":    loc.Lng,
		})
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID types.ID) ([]*Ride, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) ListByStatus(ctx context.Context, statuses ...Status) ([]*Ride, error) {
	return s.store.ListByStatus(ctx, statuses...)
}

// etaMinutes asks the route provider for a duration and falls back to a
// haversine estimate when the provider is unavailable.
func (s *Service) etaMinutes(ctx context.Context, origin, dest types.Point) int {
	if s.provider != nil {
		legs, err := s.provider.Directions(ctx, origin, dest, nil)
		if err == nil && len(legs) > 0 && legs[0].DurationSeconds > 0 {
			minutes := (legs[0].DurationSeconds + 30) / 60
			if minutes < 1 {
				minutes = 1
			}
			return minutes
		}
		if err != nil {
			s.log.Warn("directions failed, using haversine fallback", zap.Error(err))
		}
	}
	return geo.FallbackEtaMinutes(geo.DistanceKm(origin, dest), geo.DefaultAvgSpeedKmh)
}

// newOTP returns a 4-digit pickup confirmation code.
func newOTP() string {
	var b [2]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%04d", binary.BigEndian.Uint16(b[:])%10000)
}
