package store

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetrelay/internal/model"
)

// Postgres implements Store over the fleet database. Tables are provisioned
// by the CRUD subsystem; a reference schema ships in db/schema.sql.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) ActiveAssignment(ctx context.Context, driverID, vehicleID string) (model.Assignment, error) {
	var a model.Assignment
	err := p.db.QueryRowContext(ctx,
		`SELECT driver_id, vehicle_id, is_active FROM driver_assignments
		 WHERE driver_id=$1 AND vehicle_id=$2 AND is_active=true`,
		driverID, vehicleID).Scan(&a.DriverID, &a.VehicleID, &a.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Assignment{}, ErrNotFound
	}
	if err != nil {
		return model.Assignment{}, err
	}
	return a, nil
}

func (p *Postgres) DriverForVehicle(ctx context.Context, vehicleID string) (string, error) {
	var driverID string
	err := p.db.QueryRowContext(ctx,
		`SELECT driver_id FROM driver_assignments WHERE vehicle_id=$1 AND is_active=true LIMIT 1`,
		vehicleID).Scan(&driverID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return driverID, nil
}

func (p *Postgres) OrganizationForDriver(ctx context.Context, driverID string) (string, error) {
	var orgID string
	err := p.db.QueryRowContext(ctx,
		`SELECT organization_id FROM profiles WHERE user_id=$1`, driverID).Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return orgID, nil
}

func (p *Postgres) UpsertDriverLocation(ctx context.Context, rec model.LocationRecord) error {
	// last write wins on last_updated; stale rows are left untouched
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO driver_locations (driver_id, vehicle_id, latitude, longitude, speed, heading, accuracy, is_online, last_updated)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (driver_id) DO UPDATE SET
		   vehicle_id=EXCLUDED.vehicle_id, latitude=EXCLUDED.latitude, longitude=EXCLUDED.longitude,
		   speed=EXCLUDED.speed, heading=EXCLUDED.heading, accuracy=EXCLUDED.accuracy,
		   is_online=EXCLUDED.is_online, last_updated=EXCLUDED.last_updated
		 WHERE driver_locations.last_updated <= EXCLUDED.last_updated`,
		rec.DriverID, nullIfEmpty(rec.VehicleID), rec.Latitude, rec.Longitude,
		rec.Speed, rec.Heading, rec.Accuracy, rec.IsOnline, rec.LastUpdated)
	return err
}

func (p *Postgres) UpsertBookingTracking(ctx context.Context, rec model.BookingTrackingRecord) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO booking_tracking (booking_id, driver_id, latitude, longitude, speed, heading, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (booking_id) DO UPDATE SET
		   driver_id=EXCLUDED.driver_id, latitude=EXCLUDED.latitude, longitude=EXCLUDED.longitude,
		   speed=EXCLUDED.speed, heading=EXCLUDED.heading, status=EXCLUDED.status`,
		rec.BookingID, rec.DriverID, rec.Latitude, rec.Longitude, rec.Speed, rec.Heading, rec.Status)
	return err
}

func (p *Postgres) GetDriverLocation(ctx context.Context, orgID, driverID string) (model.LocationRecord, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT l.driver_id, COALESCE(l.vehicle_id,''), l.latitude, l.longitude, l.speed, l.heading, l.accuracy, l.is_online, l.last_updated
		 FROM driver_locations l JOIN profiles pr ON pr.user_id = l.driver_id
		 WHERE l.driver_id=$1 AND pr.organization_id=$2`, driverID, orgID)
	return scanLocation(row)
}

func (p *Postgres) ListDriverLocations(ctx context.Context, orgID string) ([]model.LocationRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT l.driver_id, COALESCE(l.vehicle_id,''), l.latitude, l.longitude, l.speed, l.heading, l.accuracy, l.is_online, l.last_updated
		 FROM driver_locations l JOIN profiles pr ON pr.user_id = l.driver_id
		 WHERE pr.organization_id=$1 ORDER BY l.driver_id`, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := []model.LocationRecord{}
	for rows.Next() {
		rec, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanLocation(row rowScanner) (model.LocationRecord, error) {
	var rec model.LocationRecord
	err := row.Scan(&rec.DriverID, &rec.VehicleID, &rec.Latitude, &rec.Longitude,
		&rec.Speed, &rec.Heading, &rec.Accuracy, &rec.IsOnline, &rec.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LocationRecord{}, ErrNotFound
	}
	if err != nil {
		return model.LocationRecord{}, err
	}
	return rec, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
