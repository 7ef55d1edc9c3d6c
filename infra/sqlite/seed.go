package sqlite

import (
	"context"
	"fmt"

	"github.com/kilianp07/bloodlift/core/model"
	"github.com/kilianp07/bloodlift/core/records"
)

// SampleHospitals are the hospitals created by Seed.
var SampleHospitals = []model.Hospital{
	{Name: "Central Hospital", Latitude: 40.7128, Longitude: -74.0060},
	{Name: "Northside Clinic", Latitude: 40.7306, Longitude: -73.9352},
	{Name: "East Medical Center", Latitude: 40.6500, Longitude: -73.9496},
	{Name: "West Health Center", Latitude: 40.7306, Longitude: -74.0018},
	{Name: "South General", Latitude: 40.7000, Longitude: -73.9000},
}

// SampleStock is the inventory given to every sample hospital.
var SampleStock = []model.InventoryRecord{
	{BloodType: "A+", Units: 10},
	{BloodType: "A-", Units: 5},
	{BloodType: "B+", Units: 8},
	{BloodType: "O+", Units: 12},
	{BloodType: "AB-", Units: 2},
}

// Seed adds the sample hospitals and their stock through any Editor.
func Seed(ctx context.Context, ed records.Editor) ([]model.Hospital, error) {
	out := make([]model.Hospital, 0, len(SampleHospitals))
	for _, h := range SampleHospitals {
		created, err := ed.AddHospital(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", h.Name, err)
		}
		for _, inv := range SampleStock {
			inv.HospitalID = created.ID
			if err := ed.UpsertInventory(ctx, inv); err != nil {
				return nil, fmt.Errorf("stock %s %s: %w", h.Name, inv.BloodType, err)
			}
		}
		out = append(out, created)
	}
	return out, nil
}

// Reset removes every row. The seed command calls it before Seed.
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range []string{"blood_request", "blood_inventory", "hospital"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM sqlite_sequence")
	return err
}
