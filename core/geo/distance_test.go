package geo

import (
	"math"
	"testing"

	"github.com/kilianp07/bloodlift/core/model"
)

func TestHaversineKm_ZeroDistance(t *testing.T) {
	d := HaversineKm(40.7, -74, 40.7, -74)
	if d < 0 || d > 1e-9 {
		t.Fatalf("zero distance expected ~0, got %v", d)
	}
}

func TestHaversineKm_KnownPair(t *testing.T) {
	// Central Hospital to Northside Clinic from the seed data.
	d := HaversineKm(40.7128, -74.0060, 40.7306, -73.9352)
	if math.Abs(d-6.29) > 0.05 {
		t.Fatalf("unexpected distance %.3f", d)
	}
}

func TestOffset_RoundTrip(t *testing.T) {
	origin := model.Coordinate{Lat: 40.7128, Lon: -74.0060}
	p := Offset(origin, 3, 4)
	if d := DistanceKm(origin, p); math.Abs(d-5) > 0.01 {
		t.Fatalf("expected ~5km got %.4f", d)
	}
}

func TestWithin_Boundary(t *testing.T) {
	center := model.Coordinate{Lat: 0, Lon: 0}
	inside := Offset(center, 0.5, 0)
	outside := Offset(center, 1.5, 0)
	if !Within(inside, center, 1) {
		t.Fatalf("expected point within radius")
	}
	if Within(outside, center, 1) {
		t.Fatalf("expected point outside radius")
	}
}
