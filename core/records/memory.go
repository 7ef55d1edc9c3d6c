package records

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kilianp07/bloodlift/core/model"
)

// MemoryStore is an in-memory Store used by tests, QA scenarios and the
// offline queue command.
type MemoryStore struct {
	mu        sync.RWMutex
	hospitals map[int64]model.Hospital
	inventory []model.InventoryRecord
	requests  map[int64]model.DeliveryRequest
	nextID    int64
	now       func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hospitals: make(map[int64]model.Hospital),
		requests:  make(map[int64]model.DeliveryRequest),
		now:       time.Now,
	}
}

// AddHospital inserts or replaces a hospital. A zero ID is assigned.
func (s *MemoryStore) AddHospital(_ context.Context, h model.Hospital) (model.Hospital, error) {
	if strings.TrimSpace(h.Name) == "" {
		return model.Hospital{}, Invalid(errors.New("hospital name is required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == 0 {
		for id := range s.hospitals {
			if id > h.ID {
				h.ID = id
			}
		}
		h.ID++
	}
	s.hospitals[h.ID] = h
	return h, nil
}

// UpsertInventory inserts or replaces the stock of one blood type at a
// hospital.
func (s *MemoryStore) UpsertInventory(_ context.Context, rec model.InventoryRecord) error {
	if rec.Units < 0 {
		return Invalid(errors.New("units must not be negative"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hospitals[rec.HospitalID]; !ok {
		return fmt.Errorf("hospital %d: %w", rec.HospitalID, ErrNotFound)
	}
	if rec.LastUpdated.IsZero() {
		rec.LastUpdated = s.now()
	}
	for i, r := range s.inventory {
		if r.HospitalID == rec.HospitalID && r.BloodType == rec.BloodType {
			s.inventory[i] = rec
			return nil
		}
	}
	s.inventory = append(s.inventory, rec)
	return nil
}

// CreateRequest validates and stores a request. A zero ID is assigned, a
// zero CreatedAt is set to now and an empty status becomes pending.
func (s *MemoryStore) CreateRequest(_ context.Context, r model.DeliveryRequest) (model.DeliveryRequest, error) {
	if err := r.Validate(); err != nil {
		return model.DeliveryRequest{}, Invalid(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hospitals[r.HospitalID]; !ok {
		return model.DeliveryRequest{}, fmt.Errorf("hospital %d: %w", r.HospitalID, ErrNotFound)
	}
	if r.ID == 0 {
		s.nextID++
		r.ID = s.nextID
	} else if r.ID > s.nextID {
		s.nextID = r.ID
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	if r.Status == "" {
		r.Status = model.StatusPending
	}
	s.requests[r.ID] = r
	return r, nil
}

func (s *MemoryStore) ListPendingRequests(context.Context) ([]model.DeliveryRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.DeliveryRequest
	for _, r := range s.requests {
		if r.Status == model.StatusPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListInventory(context.Context) ([]model.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.InventoryRecord, 0, len(s.inventory))
	for _, r := range s.inventory {
		if r.Units > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListHospitals(context.Context) ([]model.Hospital, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Hospital, 0, len(s.hospitals))
	for _, h := range s.hospitals {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetHospital(_ context.Context, id int64) (model.Hospital, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hospitals[id]
	if !ok {
		return model.Hospital{}, fmt.Errorf("hospital %d: %w", id, ErrNotFound)
	}
	return h, nil
}

func (s *MemoryStore) GetRequest(_ context.Context, id int64) (model.DeliveryRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return model.DeliveryRequest{}, fmt.Errorf("request %d: %w", id, ErrNotFound)
	}
	return r, nil
}

func (s *MemoryStore) UpdateRequestStatus(_ context.Context, id int64, status model.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return fmt.Errorf("request %d: %w", id, ErrNotFound)
	}
	if !r.Status.CanTransition(status) {
		return TransitionError(id, r.Status, status)
	}
	r.Status = status
	s.requests[id] = r
	return nil
}

func (s *MemoryStore) ListRequests(context.Context) ([]model.DeliveryRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.DeliveryRequest, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) UpdateHospital(_ context.Context, h model.Hospital) error {
	if strings.TrimSpace(h.Name) == "" {
		return Invalid(errors.New("hospital name is required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hospitals[h.ID]; !ok {
		return fmt.Errorf("hospital %d: %w", h.ID, ErrNotFound)
	}
	for _, r := range s.requests {
		if r.HospitalID == h.ID && !r.Status.Terminal() {
			return fmt.Errorf("hospital %d has open request %d: %w", h.ID, r.ID, ErrInUse)
		}
	}
	s.hospitals[h.ID] = h
	return nil
}

func (s *MemoryStore) DeleteHospital(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hospitals[id]; !ok {
		return fmt.Errorf("hospital %d: %w", id, ErrNotFound)
	}
	for _, r := range s.requests {
		if r.HospitalID == id && !r.Status.Terminal() {
			return fmt.Errorf("hospital %d has open request %d: %w", id, r.ID, ErrInUse)
		}
	}
	kept := s.inventory[:0]
	for _, r := range s.inventory {
		if r.HospitalID != id {
			kept = append(kept, r)
		}
	}
	s.inventory = kept
	delete(s.hospitals, id)
	return nil
}
