package simlink

import (
	"math"
	"sync"
)

// Battery models the flight pack as a percentage drained by distance flown
// and refilled while docked.
type Battery struct {
	Percent    float64
	DrainPerKm float64
	// Full and Empty map the percentage to a pack voltage.
	Full  float64
	Empty float64
	mu    sync.Mutex
}

// Drain removes the charge needed to fly km and returns the new level.
func (b *Battery) Drain(km float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Percent = clamp(b.Percent - math.Abs(km)*b.DrainPerKm)
	return b.Percent
}

// Charge adds pct percent and returns the new level.
func (b *Battery) Charge(pct float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Percent = clamp(b.Percent + pct)
	return b.Percent
}

// Level returns the remaining charge in percent.
func (b *Battery) Level() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Percent
}

// Voltage returns the pack voltage for the current level.
func (b *Battery) Voltage() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Empty + (b.Full-b.Empty)*b.Percent/100
}

func clamp(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
