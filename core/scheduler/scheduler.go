// Package scheduler turns pending requests and hospital inventory into the
// single best mission for the vehicle.
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/bloodlift/core/geo"
	"github.com/kilianp07/bloodlift/core/logger"
	"github.com/kilianp07/bloodlift/core/model"
)

// Hospitals indexes hospitals by id.
type Hospitals map[int64]model.Hospital

// IndexHospitals builds a Hospitals index.
func IndexHospitals(list []model.Hospital) Hospitals {
	idx := make(Hospitals, len(list))
	for _, h := range list {
		idx[h.ID] = h
	}
	return idx
}

// Scheduler scores candidates and caches the selected mission. Methods are
// safe for concurrent use.
type Scheduler struct {
	cfg Config
	log logger.Logger
	now func() time.Time

	mu         sync.Mutex
	current    *model.MissionCandidate
	dispatched bool
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// New creates a Scheduler.
func New(cfg Config, log logger.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = logger.Nop{}
	}
	s := &Scheduler{cfg: cfg, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Config returns the scheduling parameters.
func (s *Scheduler) Config() Config { return s.cfg }

// SelectBestMission returns the cached mission if there is one. Otherwise,
// when the vehicle is available, it builds every feasible (request, source)
// candidate and caches the one with the lowest score. Ties keep the first
// candidate in request then inventory order.
func (s *Scheduler) SelectBestMission(requests []model.DeliveryRequest, inventory []model.InventoryRecord, hospitals Hospitals, avail Availability) (model.MissionCandidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return *s.current, true
	}
	if a := s.cfg.Assess(avail); !a.Available {
		s.log.Debugw("vehicle unavailable, no candidates built", map[string]any{"reason": a.Reason, "battery": avail.Battery})
		return model.MissionCandidate{}, false
	}
	var best *model.MissionCandidate
	for _, c := range s.candidates(requests, inventory, hospitals, avail.Location) {
		if best == nil || c.PriorityScore < best.PriorityScore {
			best = &c
		}
	}
	if best == nil {
		s.log.Debugf("no feasible mission among %d pending requests", len(requests))
		return model.MissionCandidate{}, false
	}
	s.current, s.dispatched = best, false
	s.log.Infof("selected request %d from %s to %s (score %.2f)", best.Request.ID, best.Source.Name, best.Destination.Name, best.PriorityScore)
	return *best, true
}

// Queue returns every feasible candidate sorted by ascending score,
// regardless of vehicle availability or the cached mission.
func (s *Scheduler) Queue(requests []model.DeliveryRequest, inventory []model.InventoryRecord, hospitals Hospitals, drone *model.Coordinate) []model.MissionCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.candidates(requests, inventory, hospitals, drone)
	sort.SliceStable(q, func(i, j int) bool { return q[i].PriorityScore < q[j].PriorityScore })
	return q
}

// Current returns the cached mission.
func (s *Scheduler) Current() (model.MissionCandidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return model.MissionCandidate{}, false
	}
	return *s.current, true
}

// MarkDispatched records that the cached mission was handed to the
// dispatcher, which protects it from Supersede.
func (s *Scheduler) MarkDispatched() {
	s.mu.Lock()
	s.dispatched = s.current != nil
	s.mu.Unlock()
}

// Supersede drops a cached mission that has not been dispatched yet so the
// next pass can pick a better one. It reports whether a mission was dropped.
func (s *Scheduler) Supersede() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.dispatched {
		return false
	}
	s.log.Debugf("superseding queued request %d", s.current.Request.ID)
	s.current = nil
	return true
}

// Clear forgets the cached mission, dispatched or not.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	s.current, s.dispatched = nil, false
	s.mu.Unlock()
}

// Score computes the priority score of a request flown over totalKm.
func (s *Scheduler) Score(r model.DeliveryRequest, totalKm float64) float64 {
	w := s.cfg.Weights
	waited := s.now().Sub(r.CreatedAt).Hours()
	if waited < 0 {
		waited = 0
	}
	return w.Urgency(r.Urgency) - waited*w.WaitPerHour + totalKm*w.DistancePerKm
}

func (s *Scheduler) candidates(requests []model.DeliveryRequest, inventory []model.InventoryRecord, hospitals Hospitals, drone *model.Coordinate) []model.MissionCandidate {
	pending := make([]model.DeliveryRequest, 0, len(requests))
	for _, r := range requests {
		if r.Status == model.StatusPending || r.Status == "" {
			pending = append(pending, r)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })

	var out []model.MissionCandidate
	for _, r := range pending {
		dest, ok := hospitals[r.HospitalID]
		if !ok {
			s.log.Warnf("request %d references unknown hospital %d", r.ID, r.HospitalID)
			continue
		}
		var own []model.MissionCandidate
		found := len(out)
		for _, inv := range inventory {
			if !inv.Covers(r) {
				continue
			}
			src, ok := hospitals[inv.HospitalID]
			if !ok {
				s.log.Warnf("inventory references unknown hospital %d", inv.HospitalID)
				continue
			}
			c := model.MissionCandidate{Request: r, Source: src, Destination: dest}
			// Unknown drone position counts as zero extra travel.
			if drone != nil {
				c.DroneToSource = geo.DistanceKm(*drone, src.Coordinate())
			}
			c.SourceToDestination = geo.DistanceKm(src.Coordinate(), dest.Coordinate())
			c.TotalDistance = c.DroneToSource + c.SourceToDestination
			c.PriorityScore = s.Score(r, c.TotalDistance)
			if c.SameEndpoints() {
				own = append(own, c)
				continue
			}
			out = append(out, c)
		}
		// The requester's own stock is only offered when no other hospital
		// holds the blood, so the mission is rejected as invalid.
		if len(out) == found {
			out = append(out, own...)
		}
	}
	return out
}
