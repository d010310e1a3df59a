package store

import (
	"context"
	"testing"
	"time"

	"fleetrelay/internal/model"
)

func TestMemoryAssignmentLookup(t *testing.T) {
	m := NewMemory()
	m.AddProfile("drv1", "org1")
	m.SetAssignment("drv1", "veh1", true)

	if _, err := m.ActiveAssignment(context.Background(), "drv1", "veh1"); err != nil {
		t.Fatalf("active: %v", err)
	}
	if _, err := m.ActiveAssignment(context.Background(), "drv1", "veh2"); err != ErrNotFound {
		t.Fatalf("wrong vehicle: %v", err)
	}
	m.SetAssignment("drv1", "veh1", false)
	if _, err := m.ActiveAssignment(context.Background(), "drv1", "veh1"); err != ErrNotFound {
		t.Fatalf("deactivated: %v", err)
	}
	if _, err := m.DriverForVehicle(context.Background(), "veh1"); err != ErrNotFound {
		t.Fatalf("deactivated vehicle mapping: %v", err)
	}
}

func TestMemoryUpsertLastWriteWins(t *testing.T) {
	m := NewMemory()
	m.AddProfile("drv1", "org1")
	now := time.Now().UTC()

	first := model.LocationRecord{DriverID: "drv1", Latitude: 1, Longitude: 1, LastUpdated: now}
	second := model.LocationRecord{DriverID: "drv1", Latitude: 2, Longitude: 2, LastUpdated: now.Add(time.Second)}
	if err := m.UpsertDriverLocation(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	if err := m.UpsertDriverLocation(context.Background(), second); err != nil {
		t.Fatal(err)
	}

	rec, err := m.GetDriverLocation(context.Background(), "org1", "drv1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Latitude != 2 {
		t.Fatalf("later write should win: %+v", rec)
	}

	// a stale write must not clobber the newer record
	stale := model.LocationRecord{DriverID: "drv1", Latitude: 9, Longitude: 9, LastUpdated: now.Add(-time.Minute)}
	if err := m.UpsertDriverLocation(context.Background(), stale); err != nil {
		t.Fatal(err)
	}
	rec, _ = m.GetDriverLocation(context.Background(), "org1", "drv1")
	if rec.Latitude != 2 {
		t.Fatalf("stale write applied: %+v", rec)
	}

	locs, err := m.ListDriverLocations(context.Background(), "org1")
	if err != nil {
		t.Fatal(err)
	}
	if len(locs) != 1 {
		t.Fatalf("want one record, got %d", len(locs))
	}
}

func TestMemoryOrgScoping(t *testing.T) {
	m := NewMemory()
	m.AddProfile("drv1", "org1")
	m.AddProfile("drv2", "org2")
	now := time.Now().UTC()
	_ = m.UpsertDriverLocation(context.Background(), model.LocationRecord{DriverID: "drv1", Latitude: 1, LastUpdated: now})
	_ = m.UpsertDriverLocation(context.Background(), model.LocationRecord{DriverID: "drv2", Latitude: 2, LastUpdated: now})

	locs, _ := m.ListDriverLocations(context.Background(), "org1")
	if len(locs) != 1 || locs[0].DriverID != "drv1" {
		t.Fatalf("org1 rows: %+v", locs)
	}

	if _, err := m.GetDriverLocation(context.Background(), "org1", "drv2"); err != ErrNotFound {
		t.Fatalf("cross-tenant get: %v", err)
	}
}
