package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fleetrelay/internal/audit"
	"fleetrelay/internal/auth"
	"fleetrelay/internal/config"
	"fleetrelay/internal/model"
	"fleetrelay/internal/relay"
	"fleetrelay/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	log := audit.Nop()
	s := &Server{
		Cfg:      config.Config{Port: "0", AllowOrigins: "*", RateRPS: 100, RateBurst: 100},
		Store:    mem,
		Auth:     auth.NewStaticAuthenticator(nil),
		Registry: relay.NewRegistry(log),
		Source:   relay.NewChanSource(),
		Audit:    log,
	}
	return s, mem
}

func postLocation(t *testing.T, s *Server, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/locations", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	s.LocationsHandler(rr, req)
	return rr
}

func getLocations(t *testing.T, s *Server, token, query string) (*httptest.ResponseRecorder, []model.LocationRecord) {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/locations"+query, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	s.LocationsHandler(rr, req)
	var out struct {
		Locations []model.LocationRecord `json:"locations"`
	}
	if rr.Code == http.StatusOK {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return rr, out.Locations
}

func TestReportRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)
	rr := postLocation(t, s, "", `{"vehicle_id":"v1","latitude":1,"longitude":2}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("error content type: %q", ct)
	}
	var p Problem
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil || p.Status != http.StatusUnauthorized || p.Instance != "/v1/locations" {
		t.Fatalf("problem body: %s", rr.Body.String())
	}
}

func TestReportRejectedWithoutAssignment(t *testing.T) {
	s, mem := newTestServer(t)
	mem.AddProfile("drvB", "org1")
	// no assignment for drvB on v1
	rr := postLocation(t, s, "org1:drvB", `{"vehicle_id":"v1","latitude":51.5,"longitude":-0.1}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
	// rejected write must not create a record
	_, locs := getLocations(t, s, "org1:dash", "?driver_id=drvB")
	if len(locs) != 0 {
		t.Fatalf("record created on rejected report: %+v", locs)
	}
}

func TestReportAndReadByVehicle(t *testing.T) {
	s, mem := newTestServer(t)
	mem.AddProfile("drvA", "org1")
	mem.SetAssignment("drvA", "v1", true)

	rr := postLocation(t, s, "org1:drvA", `{"vehicle_id":"v1","latitude":51.50,"longitude":-0.10,"speed":12.5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
	var ack map[string]bool
	if err := json.Unmarshal(rr.Body.Bytes(), &ack); err != nil || !ack["success"] {
		t.Fatalf("ack: %s", rr.Body.String())
	}

	rr2, locs := getLocations(t, s, "org1:dash", "?vehicle_id=v1")
	if rr2.Code != http.StatusOK {
		t.Fatalf("get: %d", rr2.Code)
	}
	if len(locs) != 1 {
		t.Fatalf("locations: %+v", locs)
	}
	if locs[0].DriverID != "drvA" || locs[0].Latitude != 51.50 || locs[0].Longitude != -0.10 {
		t.Fatalf("record: %+v", locs[0])
	}
	if !locs[0].IsOnline {
		t.Fatal("is_online should default to true")
	}
}

func TestReportMissingCoordinatesRejected(t *testing.T) {
	s, mem := newTestServer(t)
	mem.AddProfile("drvA", "org1")
	mem.SetAssignment("drvA", "v1", true)

	for _, body := range []string{
		`{"vehicle_id":"v1"}`,
		`{"vehicle_id":"v1","latitude":51.5}`,
		`{"vehicle_id":"v1","longitude":-0.1}`,
	} {
		rr := postLocation(t, s, "org1:drvA", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %s: got %d, want 400", body, rr.Code)
		}
	}
	// rejected reports must not create a record
	_, locs := getLocations(t, s, "org1:dash", "?driver_id=drvA")
	if len(locs) != 0 {
		t.Fatalf("record created from incomplete report: %+v", locs)
	}

	// (0,0) is a legitimate coordinate, not a missing one
	rr := postLocation(t, s, "org1:drvA", `{"vehicle_id":"v1","latitude":0,"longitude":0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("explicit zero coordinates rejected: %d", rr.Code)
	}
}

func TestRepeatedReportsUpsert(t *testing.T) {
	s, mem := newTestServer(t)
	mem.AddProfile("drvA", "org1")
	mem.SetAssignment("drvA", "v1", true)

	postLocation(t, s, "org1:drvA", `{"vehicle_id":"v1","latitude":1.0,"longitude":1.0}`)
	rr := postLocation(t, s, "org1:drvA", `{"vehicle_id":"v1","latitude":2.0,"longitude":2.0,"is_online":false}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}

	_, locs := getLocations(t, s, "org1:dash", "?driver_id=drvA")
	if len(locs) != 1 {
		t.Fatalf("want one record, got %d", len(locs))
	}
	if locs[0].Latitude != 2.0 || locs[0].IsOnline {
		t.Fatalf("later write should win: %+v", locs[0])
	}
}

func TestReadScopedToOrganization(t *testing.T) {
	s, mem := newTestServer(t)
	mem.AddProfile("drvA", "org1")
	mem.SetAssignment("drvA", "v1", true)
	mem.AddProfile("drvZ", "org2")
	mem.SetAssignment("drvZ", "v9", true)

	postLocation(t, s, "org1:drvA", `{"vehicle_id":"v1","latitude":1,"longitude":1}`)
	postLocation(t, s, "org2:drvZ", `{"vehicle_id":"v9","latitude":9,"longitude":9}`)

	_, locs := getLocations(t, s, "org1:dash", "")
	if len(locs) != 1 || locs[0].DriverID != "drvA" {
		t.Fatalf("org1 list leaked rows: %+v", locs)
	}
	// fetching another org's driver record directly yields nothing
	_, locs = getLocations(t, s, "org1:dash", "?driver_id=drvZ")
	if len(locs) != 0 {
		t.Fatalf("cross-tenant read: %+v", locs)
	}
}

func TestBookingMirrorWrittenWithReport(t *testing.T) {
	s, mem := newTestServer(t)
	mem.AddProfile("drvA", "org1")
	mem.SetAssignment("drvA", "v1", true)

	rr := postLocation(t, s, "org1:drvA", `{"vehicle_id":"v1","latitude":3,"longitude":4,"booking_id":"bk1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
	bt, ok := mem.GetBookingTracking("bk1")
	if !ok {
		t.Fatal("booking mirror missing")
	}
	if bt.DriverID != "drvA" || bt.Status != model.BookingStatusEnRoute || bt.Latitude != 3 {
		t.Fatalf("mirror: %+v", bt)
	}
}

func TestPreflightAndCORS(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	s.LocationsHandler(rr, httptest.NewRequest(http.MethodOptions, "/v1/locations", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight: %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("preflight body: %q", rr.Body.String())
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("CORS header: %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestHealthReady(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestWSHandlerHandshake(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(http.HandlerFunc(s.WSHandler))
	defer ts.Close()

	u := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = ws.Close() }()

	if err := ws.WriteJSON(map[string]any{"type": "auth", "sessionToken": "org1:drv1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply struct {
		Type    string `json:"type"`
		Channel string `json:"channel"`
	}
	if err := ws.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply.Type != "auth_success" || reply.Channel != "org:org1" {
		t.Fatalf("reply: %+v", reply)
	}
}
