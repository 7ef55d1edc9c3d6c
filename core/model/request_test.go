package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestStatus_CanTransition(t *testing.T) {
	cases := []struct {
		from, to RequestStatus
		want     bool
	}{
		{StatusPending, StatusScheduled, true},
		{StatusPending, StatusError, true},
		{StatusPending, StatusCompleted, false},
		{StatusScheduled, StatusCompleted, true},
		{StatusScheduled, StatusError, true},
		{StatusScheduled, StatusPending, false},
		{StatusCompleted, StatusError, false},
		{StatusError, StatusPending, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestParseUrgency(t *testing.T) {
	u, err := ParseUrgency(" Critical ")
	assert.NoError(t, err)
	assert.Equal(t, UrgencyCritical, u)
	_, err = ParseUrgency("whenever")
	assert.Error(t, err)
}

func TestDeliveryRequest_Validate(t *testing.T) {
	r := DeliveryRequest{HospitalID: 1, BloodType: "O+", Units: 2, Urgency: UrgencyUrgent, CreatedAt: time.Now()}
	assert.NoError(t, r.Validate())
	r.Units = 0
	assert.Error(t, r.Validate())
}

func TestInventoryRecord_Covers(t *testing.T) {
	inv := InventoryRecord{BloodType: "O+", Units: 3}
	assert.True(t, inv.Covers(DeliveryRequest{BloodType: "O+", Units: 3}))
	assert.False(t, inv.Covers(DeliveryRequest{BloodType: "O+", Units: 4}))
	assert.False(t, inv.Covers(DeliveryRequest{BloodType: "A-", Units: 1}))
}

func TestMissionCandidate_SameEndpoints(t *testing.T) {
	m := MissionCandidate{Source: Hospital{ID: 2}, Destination: Hospital{ID: 2}}
	assert.True(t, m.SameEndpoints())
	m.Destination.ID = 3
	assert.False(t, m.SameEndpoints())
}
