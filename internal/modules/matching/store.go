// README: Route store: PostgreSQL is the source of truth, Redis GEO keeps a
// spatial index of route sources for the coarse nearby shortlist.
package matching

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"leaflift/internal/types"
)

const geoKeyRouteSources = "match:route:sources"

type PGStore struct {
	db  *pgxpool.Pool
	rdb *redis.Client
	log *zap.Logger
}

func NewPGStore(db *pgxpool.Pool, rdb *redis.Client, log *zap.Logger) *PGStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &PGStore{db: db, rdb: rdb, log: log}
}

func (s *PGStore) SaveRoute(ctx context.Context, r *Route) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_routes (
			driver_id,
			source_address, source_lat, source_lng,
			dest_address, dest_lat, dest_lng,
			gender_preference, polyline, active, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (driver_id) DO UPDATE SET
			source_address = EXCLUDED.source_address,
			source_lat = EXCLUDED.source_lat,
			source_lng = EXCLUDED.source_lng,
			dest_address = EXCLUDED.dest_address,
			dest_lat = EXCLUDED.dest_lat,
			dest_lng = EXCLUDED.dest_lng,
			gender_preference = EXCLUDED.gender_preference,
			polyline = EXCLUDED.polyline,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		string(r.DriverID),
		r.Source.Address, r.Source.Lat, r.Source.Lng,
		r.Destination.Address, r.Destination.Lat, r.Destination.Lng,
		string(r.GenderPreference), r.Polyline, r.Active, r.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if s.rdb != nil {
		err := s.rdb.GeoAdd(ctx, geoKeyRouteSources, &redis.GeoLocation{
			Name:      string(r.DriverID),
			Longitude: r.Source.Lng,
			Latitude:  r.Source.Lat,
		}).Err()
		if err != nil {
			// The spatial index is a shortlist only; a stale entry is corrected
			// by the next save and filtered out by the exact checks.
			s.log.Warn("geo index update failed", zap.Error(err))
		}
	}
	return nil
}

func (s *PGStore) ActiveRoutesNear(ctx context.Context, p types.Point, radiusKm float64) ([]*Route, error) {
	if s.rdb != nil {
		ids, err := s.rdb.GeoSearch(ctx, geoKeyRouteSources, &redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
		}).Result()
		if err == nil {
			if len(ids) == 0 {
				return nil, nil
			}
			return s.routesByDriver(ctx, ids)
		}
		s.log.Warn("geo search failed, scanning all active routes", zap.Error(err))
	}
	return s.activeRoutes(ctx)
}

func (s *PGStore) DeactivateRoute(ctx context.Context, driverID types.ID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE driver_routes SET active = FALSE, updated_at = NOW() WHERE driver_id = $1`,
		string(driverID))
	if err != nil {
		return err
	}
	if s.rdb != nil {
		if err := s.rdb.ZRem(ctx, geoKeyRouteSources, string(driverID)).Err(); err != nil {
			s.log.Warn("geo index removal failed", zap.Error(err))
		}
	}
	return nil
}

const routeColumns = `
	driver_id,
	source_address, source_lat, source_lng,
	dest_address, dest_lat, dest_lng,
	gender_preference, polyline, active, updated_at`

func (s *PGStore) routesByDriver(ctx context.Context, driverIDs []string) ([]*Route, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+routeColumns+` FROM driver_routes WHERE active AND driver_id = ANY($1)`, driverIDs)
	if err != nil {
		return nil, err
	}
	return collectRoutes(rows)
}

func (s *PGStore) activeRoutes(ctx context.Context) ([]*Route, error) {
	rows, err := s.db.Query(ctx, `SELECT `+routeColumns+` FROM driver_routes WHERE active`)
	if err != nil {
		return nil, err
	}
	return collectRoutes(rows)
}

func collectRoutes(rows pgx.Rows) ([]*Route, error) {
	defer rows.Close()
	var out []*Route
	for rows.Next() {
		var r Route
		err := rows.Scan(
			&r.DriverID,
			&r.Source.Address, &r.Source.Lat, &r.Source.Lng,
			&r.Destination.Address, &r.Destination.Lat, &r.Destination.Lng,
			&r.GenderPreference, &r.Polyline, &r.Active, &r.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
