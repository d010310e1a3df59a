package store

import (
	"context"
	"errors"

	"fleetrelay/internal/model"
)

// Store is the persistence interface used by the relay and ingest handlers.
// Assignments and profiles are owned by the fleet CRUD subsystem; the relay
// only reads them.
type Store interface {
	// Authorization inputs
	ActiveAssignment(ctx context.Context, driverID, vehicleID string) (model.Assignment, error)
	DriverForVehicle(ctx context.Context, vehicleID string) (string, error)
	OrganizationForDriver(ctx context.Context, driverID string) (string, error)

	// Location writes (upserts, last write wins on LastUpdated)
	UpsertDriverLocation(ctx context.Context, rec model.LocationRecord) error
	UpsertBookingTracking(ctx context.Context, rec model.BookingTrackingRecord) error

	// Location reads, scoped to the caller's organization
	GetDriverLocation(ctx context.Context, orgID, driverID string) (model.LocationRecord, error)
	ListDriverLocations(ctx context.Context, orgID string) ([]model.LocationRecord, error)
}

var ErrNotFound = errors.New("not found")
