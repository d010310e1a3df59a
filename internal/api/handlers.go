package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"fleetrelay/internal/auth"
	"fleetrelay/internal/metrics"
	"fleetrelay/internal/model"
	"fleetrelay/internal/store"
)

// LocationsHandler handles POST/GET/OPTIONS /v1/locations.
func (s *Server) LocationsHandler(w http.ResponseWriter, r *http.Request) {
	s.applyCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		s.reportLocation(w, r)
	case http.MethodGet:
		s.listLocations(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// reportLocation runs one discrete location report through authorization and
// the latest-location upsert.
func (s *Server) reportLocation(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Auth.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			metrics.LocationReports.WithLabelValues("unauthenticated").Inc()
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid session token", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Authentication failed", err.Error(), r.URL.Path)
		return
	}
	var req model.LocationReport
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.VehicleID == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid report", "vehicle_id is required", r.URL.Path)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeProblem(w, http.StatusBadRequest, "Invalid report", "latitude and longitude are required", r.URL.Path)
		return
	}
	driverID := sess.UserID
	if req.DriverID != "" && req.DriverID != driverID {
		// a driver may only report as themselves
		metrics.LocationReports.WithLabelValues("forbidden").Inc()
		s.Audit.ReportRejected(driverID, req.VehicleID, "driver_id mismatch")
		writeProblem(w, http.StatusForbidden, "Forbidden", "not authorized to update this vehicle", r.URL.Path)
		return
	}
	if _, err := s.Store.ActiveAssignment(r.Context(), driverID, req.VehicleID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.LocationReports.WithLabelValues("forbidden").Inc()
			s.Audit.ReportRejected(driverID, req.VehicleID, "no active assignment")
			writeProblem(w, http.StatusForbidden, "Forbidden", "not authorized to update this vehicle", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Assignment lookup failed", err.Error(), r.URL.Path)
		return
	}
	isOnline := true
	if req.IsOnline != nil {
		isOnline = *req.IsOnline
	}
	rec := model.LocationRecord{
		DriverID:    driverID,
		VehicleID:   req.VehicleID,
		Latitude:    *req.Latitude,
		Longitude:   *req.Longitude,
		Speed:       req.Speed,
		Heading:     req.Heading,
		Accuracy:    req.Accuracy,
		IsOnline:    isOnline,
		LastUpdated: time.Now().UTC(),
	}
	if err := s.Store.UpsertDriverLocation(r.Context(), rec); err != nil {
		metrics.LocationReports.WithLabelValues("error").Inc()
		writeProblem(w, http.StatusInternalServerError, "Location upsert failed", err.Error(), r.URL.Path)
		return
	}
	if req.BookingID != "" {
		// best-effort mirror; a failure here never rolls back the location
		bt := model.BookingTrackingRecord{
			BookingID: req.BookingID,
			DriverID:  driverID,
			Latitude:  *req.Latitude,
			Longitude: *req.Longitude,
			Speed:     req.Speed,
			Heading:   req.Heading,
			Status:    model.BookingStatusEnRoute,
		}
		if err := s.Store.UpsertBookingTracking(r.Context(), bt); err != nil {
			s.Audit.Error("booking_tracking.upsert", err)
		}
	}
	metrics.LocationReports.WithLabelValues("accepted").Inc()
	s.Audit.ReportAccepted(driverID, req.VehicleID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// listLocations returns latest locations scoped to the caller's organization.
// vehicle_id resolves through the currently assigned driver; driver_id reads
// one record; neither returns everything visible to the caller.
func (s *Server) listLocations(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Auth.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid session token", r.URL.Path)
		return
	}
	orgID := sess.OrgID
	if orgID == "" {
		orgID, err = s.Store.OrganizationForDriver(r.Context(), sess.UserID)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Organization not resolvable", "caller has no organization", r.URL.Path)
			return
		}
	}
	q := r.URL.Query()
	var out []model.LocationRecord
	switch {
	case q.Get("vehicle_id") != "":
		driverID, err := s.Store.DriverForVehicle(r.Context(), q.Get("vehicle_id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeJSON(w, http.StatusOK, map[string]any{"locations": []model.LocationRecord{}})
				return
			}
			writeProblem(w, http.StatusInternalServerError, "Lookup failed", err.Error(), r.URL.Path)
			return
		}
		out = s.fetchOne(w, r, orgID, driverID)
		if out == nil {
			return
		}
	case q.Get("driver_id") != "":
		out = s.fetchOne(w, r, orgID, q.Get("driver_id"))
		if out == nil {
			return
		}
	default:
		out, err = s.Store.ListDriverLocations(r.Context(), orgID)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List failed", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": out})
}

// fetchOne loads a single driver's record inside the caller's organization.
// Returns nil after writing a response on storage failure; absent records
// yield an empty slice (cross-tenant rows are indistinguishable from absent).
func (s *Server) fetchOne(w http.ResponseWriter, r *http.Request, orgID, driverID string) []model.LocationRecord {
	rec, err := s.Store.GetDriverLocation(r.Context(), orgID, driverID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []model.LocationRecord{}
		}
		writeProblem(w, http.StatusInternalServerError, "Lookup failed", err.Error(), r.URL.Path)
		return nil
	}
	return []model.LocationRecord{rec}
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports readiness.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
