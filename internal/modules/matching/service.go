// README: Proximity matching between rider trips and published driver routes,
// with gender preference filters applied in both directions.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"leaflift/internal/config"
	"leaflift/internal/geo"
	"leaflift/internal/maps"
	"leaflift/internal/modules/ride"
	"leaflift/internal/modules/user"
	"leaflift/internal/types"
)

var (
	ErrNotFound   = errors.New("route not found")
	ErrBadRequest = errors.New("bad request")
)

// corridorKm is how far a pickup may sit from the route polyline and still
// count as on-route.
const corridorKm = 1.0

type Store interface {
	SaveRoute(ctx context.Context, r *Route) error
	// ActiveRoutesNear returns active routes whose source lies within radiusKm
	// of p. The shortlist is coarse; the service applies the exact filters.
	ActiveRoutesNear(ctx context.Context, p types.Point, radiusKm float64) ([]*Route, error)
	DeactivateRoute(ctx context.Context, driverID types.ID) error
}

type UserDirectory interface {
	Get(ctx context.Context, id types.ID) (*user.User, error)
}

type RideSource interface {
	ListByStatus(ctx context.Context, statuses ...ride.Status) ([]*ride.Ride, error)
}

type Service struct {
	store    Store
	users    UserDirectory
	rides    RideSource
	provider maps.Provider
	cfg      config.MatchingConfig
	log      *zap.Logger
}

func NewService(store Store, users UserDirectory, rides RideSource, provider maps.Provider, cfg config.MatchingConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, users: users, rides: rides, provider: provider, cfg: cfg, log: log}
}

type PublishRouteCommand struct {
	DriverID         types.ID
	Source           types.GeoPoint
	Destination      types.GeoPoint
	GenderPreference GenderPreference
}

// PublishRoute stores or replaces the driver's active route. The route
// polyline is fetched best effort; matching degrades to endpoint distance when
// it is missing.
func (s *Service) PublishRoute(ctx context.Context, cmd PublishRouteCommand) (*Route, error) {
	if cmd.DriverID == "" {
		return nil, fmt.Errorf("%w: driverId is required", ErrBadRequest)
	}
	pref := cmd.GenderPreference
	if pref == "" {
		pref = GenderPreferenceAny
	}
	if pref != GenderPreferenceAny && pref != GenderPreferenceFemaleOnly {
		return nil, fmt.Errorf("%w: unknown gender preference %q", ErrBadRequest, pref)
	}

	r := &Route{
		DriverID:         cmd.DriverID,
		Source:           cmd.Source,
		Destination:      cmd.Destination,
		GenderPreference: pref,
		Active:           true,
		UpdatedAt:        time.Now().UTC(),
	}
	if s.provider != nil {
		legs, err := s.provider.Directions(ctx, cmd.Source.Point(), cmd.Destination.Point(), nil)
		if err != nil {
			s.log.Warn("route polyline unavailable", zap.Error(err), zap.String("driver_id", string(cmd.DriverID)))
		} else if len(legs) > 0 {
			r.Polyline = legs[0].Polyline
		}
	}
	if err := s.store.SaveRoute(ctx, r); err != nil {
		return nil, err
	}
	s.log.Info("driver route published",
		zap.String("driver_id", string(cmd.DriverID)),
		zap.String("gender_preference", string(pref)))
	return r, nil
}

func (s *Service) DeactivateRoute(ctx context.Context, driverID types.ID) error {
	if driverID == "" {
		return fmt.Errorf("%w: driverId is required", ErrBadRequest)
	}
	return s.store.DeactivateRoute(ctx, driverID)
}

type MatchQuery struct {
	RiderID types.ID
	Pickup  types.Point
	Dropoff types.Point
	// RiderGender overrides the directory lookup when the caller already
	// knows it.
	RiderGender      string
	GenderPreference GenderPreference
	RadiusKm         float64
}

// FindNearbyDrivers returns drivers whose route endpoints are both within the
// match radius of the rider's trip, filtered by gender preferences on both
// sides and ordered by combined endpoint distance.
func (s *Service) FindNearbyDrivers(ctx context.Context, q MatchQuery) ([]DriverMatch, error) {
	if q.RiderID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrBadRequest)
	}
	radius := q.RadiusKm
	if radius <= 0 {
		radius = s.cfg.RadiusKm
	}

	riderGender := q.RiderGender
	if riderGender == "" {
		rider, err := s.users.Get(ctx, q.RiderID)
		if err != nil {
			return nil, err
		}
		riderGender = rider.Gender
	}

	routes, err := s.store.ActiveRoutesNear(ctx, q.Pickup, radius)
	if err != nil {
		return nil, err
	}

	matches := make([]DriverMatch, 0, len(routes))
	for _, route := range routes {
		pickupKm := geo.DistanceKm(route.Source.Point(), q.Pickup)
		dropoffKm := geo.DistanceKm(route.Destination.Point(), q.Dropoff)
		if pickupKm > radius || dropoffKm > radius {
			continue
		}
		if route.GenderPreference == GenderPreferenceFemaleOnly && riderGender != "Female" {
			continue
		}

		driver, err := s.users.Get(ctx, route.DriverID)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				s.log.Warn("active route for unknown driver", zap.String("driver_id", string(route.DriverID)))
				continue
			}
			return nil, err
		}
		if q.GenderPreference == GenderPreferenceFemaleOnly && driver.Gender != "Female" {
			continue
		}

		m := DriverMatch{
			DriverID:          route.DriverID,
			Name:              driver.FullName(),
			Gender:            driver.Gender,
			Verified:          driver.Verified,
			Rating:            driver.Rating,
			Source:            route.Source,
			Destination:       route.Destination,
			GenderPreference:  route.GenderPreference,
			PickupDistanceKm:  pickupKm,
			DropoffDistanceKm: dropoffKm,
		}
		if route.Polyline != "" {
			pts := geo.DecodePolyline(route.Polyline)
			m.OnRoute = geo.PointToPolylineKm(q.Pickup, pts) <= corridorKm
		}
		matches = append(matches, m)
	}

	geo.SortByDistance(matches, func(m DriverMatch) float64 {
		return m.PickupDistanceKm + m.DropoffDistanceKm
	})
	return matches, nil
}

// FindNearbyRides lists searching rides for drivers. With a nil position every
// searching ride is returned; otherwise only rides whose pickup is within
// radiusKm.
func (s *Service) FindNearbyRides(ctx context.Context, near *types.Point, radiusKm float64) ([]NearbyRide, error) {
	if radiusKm <= 0 {
		radiusKm = s.cfg.RadiusKm
	}
	searching, err := s.rides.ListByStatus(ctx, ride.StatusSearching)
	if err != nil {
		return nil, err
	}

	out := make([]NearbyRide, 0, len(searching))
	for _, r := range searching {
		nr := NearbyRide{
			RideID:    r.ID,
			RiderID:   r.UserID,
			Pickup:    r.Pickup,
			Dropoff:   r.Dropoff,
			Fare:      r.Fare,
			CreatedAt: r.CreatedAt,
		}
		if near != nil {
			nr.PickupDistanceKm = geo.DistanceKm(*near, r.Pickup.Point())
			if nr.PickupDistanceKm > radiusKm {
				continue
			}
		}
		if rider, err := s.users.Get(ctx, r.UserID); err == nil {
			nr.RiderName = rider.FullName()
			nr.RiderVerified = rider.Verified
		}
		out = append(out, nr)
	}

	if near != nil {
		geo.SortByDistance(out, func(n NearbyRide) float64 { return n.PickupDistanceKm })
	}
	return out, nil
}
