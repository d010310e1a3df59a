package model

import "time"

// Session identifies an authenticated caller for the lifetime of one
// connection. It is never persisted by the relay.
type Session struct {
	UserID   string    `json:"userId"`
	OrgID    string    `json:"orgId"`
	Channel  string    `json:"channel"`
	IssuedAt time.Time `json:"issuedAt"`
}

// LocationReport is the ingest payload posted by a driver device. Latitude
// and longitude are pointers so a missing coordinate is distinguishable from
// a report at (0,0).
type LocationReport struct {
	VehicleID string   `json:"vehicle_id"`
	DriverID  string   `json:"driver_id,omitempty"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	IsOnline  *bool    `json:"is_online,omitempty"`
	JobID     string   `json:"job_id,omitempty"`
	BookingID string   `json:"booking_id,omitempty"`
}

// LocationRecord is the latest known position for a driver.
// One record per driver; writes are upserts, last write wins.
type LocationRecord struct {
	DriverID    string    `json:"driverId"`
	VehicleID   string    `json:"vehicleId,omitempty"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Speed       *float64  `json:"speed,omitempty"`
	Heading     *float64  `json:"heading,omitempty"`
	Accuracy    *float64  `json:"accuracy,omitempty"`
	IsOnline    bool      `json:"isOnline"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Assignment asserts that a driver currently operates a vehicle.
// Owned and mutated by the fleet CRUD subsystem; the relay only reads it.
type Assignment struct {
	DriverID  string `json:"driverId"`
	VehicleID string `json:"vehicleId"`
	IsActive  bool   `json:"isActive"`
}

// BookingTrackingRecord mirrors a driver's position into a booking, upserted
// opportunistically whenever a report carries a booking id.
type BookingTrackingRecord struct {
	BookingID string   `json:"bookingId"`
	DriverID  string   `json:"driverId"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Status    string   `json:"status"`
}

// BookingStatusEnRoute is the fixed status stamped on booking tracking
// mirrors while a driver is reporting positions.
const BookingStatusEnRoute = "en_route"

// Profile maps a user/driver to an organization; used for tenant scoping.
type Profile struct {
	UserID string `json:"userId"`
	OrgID  string `json:"orgId"`
}
