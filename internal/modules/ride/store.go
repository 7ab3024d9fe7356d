// README: Ride store backed by PostgreSQL. Status and stop writes use a
// from-state + version guard so concurrent transitions resolve to exactly one
// winner.
package ride

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leaflift/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const rideColumns = `
	id, user_id, driver_id, status, status_version,
	pickup_address, pickup_lat, pickup_lng,
	dropoff_address, dropoff_lat, dropoff_lng,
	stops, current_stop_index,
	fare, distance, duration, vehicle_category,
	driver_lat, driver_lng, driver_loc_updated_at,
	rider_lat, rider_lng, rider_loc_updated_at,
	eta_to_pickup, eta_to_dropoff,
	original_eta_minutes, last_delay_alert_at,
	otp, otp_verified,
	co2_emissions, co2_saved, is_pooled,
	created_at, accepted_at, arrived_at, started_at, completed_at, canceled_at`

func (s *PGStore) Create(ctx context.Context, r *Ride) error {
	stops, err := json.Marshal(r.Stops)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO rides (
			id, user_id, status, status_version,
			pickup_address, pickup_lat, pickup_lng,
			dropoff_address, dropoff_lat, dropoff_lng,
			stops, current_stop_index,
			fare, distance, duration, vehicle_category,
			otp, otp_verified,
			co2_emissions, co2_saved, is_pooled,
			created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12,
			$13, $14, $15, $16,
			$17, $18,
			$19, $20, $21,
			$22
		)`,
		string(r.ID), string(r.UserID), string(r.Status), r.StatusVersion,
		r.Pickup.Address, r.Pickup.Lat, r.Pickup.Lng,
		r.Dropoff.Address, r.Dropoff.Lat, r.Dropoff.Lng,
		stops, r.CurrentStopIndex,
		r.Fare, r.Distance, r.Duration, string(r.VehicleCategory),
		r.OTP, r.OTPVerified,
		r.CO2Emissions, r.CO2Saved, r.IsPooled,
		r.CreatedAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *PGStore) ListByUser(ctx context.Context, userID types.ID) ([]*Ride, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE user_id = $1 ORDER BY created_at DESC`, string(userID))
	if err != nil {
		return nil, err
	}
	return collectRides(rows)
}

func (s *PGStore) ListByStatus(ctx context.Context, statuses ...Status) ([]*Ride, error) {
	vals := make([]string, len(statuses))
	for i, st := range statuses {
		vals[i] = string(st)
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE status = ANY($1) ORDER BY created_at DESC`, vals)
	if err != nil {
		return nil, err
	}
	return collectRides(rows)
}

func (s *PGStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, driverID *types.ID) (bool, error) {
	var d *string
	if driverID != nil {
		v := string(*driverID)
		d = &v
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = $1,
			status_version = status_version + 1,
			driver_id = COALESCE($2, driver_id),
			otp_verified = CASE WHEN $1 = 'IN_PROGRESS' THEN TRUE ELSE otp_verified END,
			accepted_at = CASE WHEN $1 = 'ACCEPTED' THEN NOW() ELSE accepted_at END,
			arrived_at = CASE WHEN $1 = 'ARRIVED' THEN NOW() ELSE arrived_at END,
			started_at = CASE WHEN $1 = 'IN_PROGRESS' THEN NOW() ELSE started_at END,
			completed_at = CASE WHEN $1 = 'COMPLETED' THEN NOW() ELSE completed_at END,
			canceled_at = CASE WHEN $1 = 'CANCELED' THEN NOW() ELSE canceled_at END
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(to), d, string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) SetOriginalEta(ctx context.Context, id types.ID, minutes int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE rides
		SET original_eta_minutes = $1
		WHERE id = $2 AND original_eta_minutes IS NULL`,
		minutes, string(id),
	)
	return err
}

func (s *PGStore) UpdateStops(ctx context.Context, id types.ID, stops []Stop, currentIndex, version int) (bool, error) {
	data, err := json.Marshal(stops)
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET stops = $1,
			current_stop_index = $2,
			status_version = status_version + 1
		WHERE id = $3 AND status_version = $4`,
		data, currentIndex, string(id), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) UpdateLocation(ctx context.Context, id types.ID, actor Actor, loc Location) error {
	var column string
	switch actor {
	case ActorDriver:
		column = "driver"
	case ActorRider:
		column = "rider"
	default:
		return fmt.Errorf("unknown actor %q", actor)
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
		UPDATE rides
		SET %[1]s_lat = $1, %[1]s_lng = $2, %[1]s_loc_updated_at = $3
		WHERE id = $4`, column),
		loc.Lat, loc.Lng, loc.UpdatedAt, string(id),
	)
	return err
}

func (s *PGStore) UpdateEta(ctx context.Context, id types.ID, etaToPickup, etaToDropoff string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE rides SET eta_to_pickup = $1, eta_to_dropoff = $2 WHERE id = $3`,
		etaToPickup, etaToDropoff, string(id),
	)
	return err
}

func (s *PGStore) MarkDelayAlert(ctx context.Context, id types.ID, at time.Time, cooldown time.Duration) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET last_delay_alert_at = $1
		WHERE id = $2
		  AND (last_delay_alert_at IS NULL OR last_delay_alert_at < $3)`,
		at, string(id), at.Add(-cooldown),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRide(row scanner) (*Ride, error) {
	var (
		r           Ride
		driverID    *string
		stopsJSON   []byte
		dLat, dLng  *float64
		dAt         *time.Time
		rLat, rLng  *float64
		rAt         *time.Time
		etaPickup   *string
		etaDropoff  *string
		originalEta *int
	)

	err := row.Scan(
		&r.ID, &r.UserID, &driverID, &r.Status, &r.StatusVersion,
		&r.Pickup.Address, &r.Pickup.Lat, &r.Pickup.Lng,
		&r.Dropoff.Address, &r.Dropoff.Lat, &r.Dropoff.Lng,
		&stopsJSON, &r.CurrentStopIndex,
		&r.Fare, &r.Distance, &r.Duration, &r.VehicleCategory,
		&dLat, &dLng, &dAt,
		&rLat, &rLng, &rAt,
		&etaPickup, &etaDropoff,
		&originalEta, &r.LastDelayAlertAt,
		&r.OTP, &r.OTPVerified,
		&r.CO2Emissions, &r.CO2Saved, &r.IsPooled,
		&r.CreatedAt, &r.AcceptedAt, &r.ArrivedAt, &r.StartedAt, &r.CompletedAt, &r.CanceledAt,
	)
	if err != nil {
		return nil, err
	}

	if driverID != nil {
		id := types.ID(*driverID)
		r.DriverID = &id
	}
	if len(stopsJSON) > 0 {
		if err := json.Unmarshal(stopsJSON, &r.Stops); err != nil {
			return nil, err
		}
	}
	if dLat != nil && dLng != nil && dAt != nil {
		r.DriverLocation = &Location{Lat: *dLat, Lng: *dLng, UpdatedAt: *dAt}
	}
	if rLat != nil && rLng != nil && rAt != nil {
		r.RiderLocation = &Location{Lat: *rLat, Lng: *rLng, UpdatedAt: *rAt}
	}
	if etaPickup != nil {
		r.EtaToPickup = *etaPickup
	}
	if etaDropoff != nil {
		r.EtaToDropoff = *etaDropoff
	}
	r.OriginalEtaMinutes = originalEta
	return &r, nil
}

func collectRides(rows pgx.Rows) ([]*Ride, error) {
	defer rows.Close()
	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
