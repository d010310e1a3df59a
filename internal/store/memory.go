package store

import (
	"context"
	"sort"
	"sync"

	"fleetrelay/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu          sync.Mutex
	profiles    map[string]string                      // driverId -> orgId
	assignments map[string]model.Assignment            // driverId|vehicleId -> assignment
	byVehicle   map[string]string                      // vehicleId -> active driverId
	locations   map[string]model.LocationRecord        // driverId -> latest location
	bookings    map[string]model.BookingTrackingRecord // bookingId -> tracking record
}

func NewMemory() *Memory {
	return &Memory{
		profiles:    map[string]string{},
		assignments: map[string]model.Assignment{},
		byVehicle:   map[string]string{},
		locations:   map[string]model.LocationRecord{},
		bookings:    map[string]model.BookingTrackingRecord{},
	}
}

func assignmentKey(driverID, vehicleID string) string { return driverID + "|" + vehicleID }

// AddProfile registers a driver's organization. Seeding helper; in production
// profiles are written by the CRUD subsystem.
func (m *Memory) AddProfile(driverID, orgID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[driverID] = orgID
}

// SetAssignment records a driver-to-vehicle assignment. Seeding helper.
func (m *Memory) SetAssignment(driverID, vehicleID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[assignmentKey(driverID, vehicleID)] = model.Assignment{DriverID: driverID, VehicleID: vehicleID, IsActive: active}
	if active {
		m.byVehicle[vehicleID] = driverID
	} else if m.byVehicle[vehicleID] == driverID {
		delete(m.byVehicle, vehicleID)
	}
}

func (m *Memory) ActiveAssignment(ctx context.Context, driverID, vehicleID string) (model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[assignmentKey(driverID, vehicleID)]
	if !ok || !a.IsActive {
		return model.Assignment{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) DriverForVehicle(ctx context.Context, vehicleID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byVehicle[vehicleID]
	if !ok {
		return "", ErrNotFound
	}
	return d, nil
}

func (m *Memory) OrganizationForDriver(ctx context.Context, driverID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.profiles[driverID]
	if !ok {
		return "", ErrNotFound
	}
	return org, nil
}

func (m *Memory) UpsertDriverLocation(ctx context.Context, rec model.LocationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.locations[rec.DriverID]; ok && prev.LastUpdated.After(rec.LastUpdated) {
		// stale write; later timestamp already stored
		return nil
	}
	m.locations[rec.DriverID] = rec
	return nil
}

func (m *Memory) UpsertBookingTracking(ctx context.Context, rec model.BookingTrackingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[rec.BookingID] = rec
	return nil
}

func (m *Memory) GetDriverLocation(ctx context.Context, orgID, driverID string) (model.LocationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profiles[driverID] != orgID {
		return model.LocationRecord{}, ErrNotFound
	}
	rec, ok := m.locations[driverID]
	if !ok {
		return model.LocationRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListDriverLocations(ctx context.Context, orgID string) ([]model.LocationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.LocationRecord{}
	for driverID, rec := range m.locations {
		if m.profiles[driverID] == orgID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out, nil
}

// GetBookingTracking returns the tracking mirror for a booking.
func (m *Memory) GetBookingTracking(bookingID string) (model.BookingTrackingRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.bookings[bookingID]
	return rec, ok
}
