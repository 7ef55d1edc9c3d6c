// Package safety decides whether a proposed mission may fly. The gate is a
// pure function of its inputs and the configured limits; it fails closed.
package safety

import (
	"fmt"
	"math"

	"github.com/kilianp07/bloodlift/core/geo"
	"github.com/kilianp07/bloodlift/core/logger"
	"github.com/kilianp07/bloodlift/core/model"
)

// Check names the safety rule that produced a decision.
type Check string

const (
	CheckNone      Check = ""
	CheckInput     Check = "input"
	CheckDistance  Check = "distance"
	CheckBattery   Check = "battery_reserve"
	CheckWeather   Check = "weather"
	CheckAltitude  Check = "altitude"
	CheckNoFlyZone Check = "no_fly_zone"
	CheckInternal  Check = "internal"
)

// MissionParams are the inputs of one safety evaluation.
//
// Via lists intermediate stops (the source hospital) whose positions are
// checked against no-fly zones like the endpoints. RouteDistanceKm, when
// larger than the straight start to destination distance, is used for the
// range and battery checks.
type MissionParams struct {
	BatteryPercent  float64            `json:"battery_percent"`
	WindSpeed       float64            `json:"wind_speed"`
	Visibility      float64            `json:"visibility"`
	Start           model.Coordinate   `json:"start"`
	Destination     model.Coordinate   `json:"destination"`
	Via             []model.Coordinate `json:"via,omitempty"`
	PlannedAltitude float64            `json:"planned_altitude"`
	RouteDistanceKm float64            `json:"route_distance_km,omitempty"`
}

// Decision is the gate outcome. Check and Reason are set when Safe is false.
type Decision struct {
	Safe       bool          `json:"safe"`
	Check      Check         `json:"check,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	DistanceKm float64       `json:"distance_km"`
	Params     MissionParams `json:"params"`
}

// Gate evaluates missions against Limits and a fixed set of no-fly zones.
type Gate struct {
	limits Limits
	zones  []model.NoFlyZone
	log    logger.Logger
}

// NewGate creates a Gate. zones is copied.
func NewGate(limits Limits, zones []model.NoFlyZone, log logger.Logger) *Gate {
	if log == nil {
		log = logger.Nop{}
	}
	return &Gate{limits: limits, zones: append([]model.NoFlyZone(nil), zones...), log: log}
}

// Limits returns the configured limits.
func (g *Gate) Limits() Limits { return g.limits }

// Zones returns a copy of the configured no-fly zones.
func (g *Gate) Zones() []model.NoFlyZone { return append([]model.NoFlyZone(nil), g.zones...) }

// IsMissionSafe is the boolean form of Evaluate.
func (g *Gate) IsMissionSafe(battery, wind, visibility float64, start, destination model.Coordinate, altitude float64) bool {
	return g.Evaluate(MissionParams{
		BatteryPercent:  battery,
		WindSpeed:       wind,
		Visibility:      visibility,
		Start:           start,
		Destination:     destination,
		PlannedAltitude: altitude,
	}).Safe
}

// Evaluate runs the checks in order and stops at the first failure. Any
// panic during evaluation produces an unsafe decision.
func (g *Gate) Evaluate(p MissionParams) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = Decision{Check: CheckInternal, Reason: fmt.Sprintf("evaluation failed: %v", r), Params: p}
			g.log.Errorf("safety evaluation panic: %v", r)
		}
	}()
	d = g.evaluate(p)
	fields := map[string]any{
		"check":            string(d.Check),
		"reason":           d.Reason,
		"distance_km":      d.DistanceKm,
		"battery":          p.BatteryPercent,
		"wind_speed":       p.WindSpeed,
		"visibility":       p.Visibility,
		"planned_altitude": p.PlannedAltitude,
		"start":            p.Start,
		"destination":      p.Destination,
	}
	if d.Safe {
		g.log.Debugw("mission passed safety checks", fields)
	} else {
		g.log.Warnw("mission rejected", fields)
	}
	return d
}

func (g *Gate) evaluate(p MissionParams) Decision {
	d := Decision{Params: p}
	if bad := firstNonFinite(p); bad != "" {
		d.Check, d.Reason = CheckInput, fmt.Sprintf("%s is not a finite number", bad)
		return d
	}
	l := g.limits

	d.DistanceKm = math.Max(geo.DistanceKm(p.Start, p.Destination), p.RouteDistanceKm)
	if d.DistanceKm > l.MaxDistanceKm {
		d.Check, d.Reason = CheckDistance, fmt.Sprintf("distance %.2f km exceeds maximum %.2f km", d.DistanceKm, l.MaxDistanceKm)
		return d
	}

	required := 2*d.DistanceKm + l.MinBatteryReserve
	if p.BatteryPercent < required {
		d.Check, d.Reason = CheckBattery, fmt.Sprintf("battery %.1f%% below required %.1f%%", p.BatteryPercent, required)
		return d
	}

	if p.WindSpeed > l.MaxWindSpeed {
		d.Check, d.Reason = CheckWeather, fmt.Sprintf("wind %.1f km/h exceeds maximum %.1f km/h", p.WindSpeed, l.MaxWindSpeed)
		return d
	}
	if p.Visibility < l.MinVisibility {
		d.Check, d.Reason = CheckWeather, fmt.Sprintf("visibility %.0f m below minimum %.0f m", p.Visibility, l.MinVisibility)
		return d
	}

	if p.PlannedAltitude < l.MinAltitude || p.PlannedAltitude > l.MaxAltitude {
		d.Check, d.Reason = CheckAltitude, fmt.Sprintf("altitude %.0f m outside [%.0f, %.0f] m", p.PlannedAltitude, l.MinAltitude, l.MaxAltitude)
		return d
	}

	// Only mission endpoints and stops are checked, not the path between them.
	points := make([]model.Coordinate, 0, len(p.Via)+2)
	points = append(points, p.Start)
	points = append(points, p.Via...)
	points = append(points, p.Destination)
	for _, z := range g.zones {
		for _, pt := range points {
			if geo.Within(pt, z.Center(), z.RadiusKm) {
				d.Check = CheckNoFlyZone
				d.Reason = fmt.Sprintf("point %.5f,%.5f inside no-fly zone %q", pt.Lat, pt.Lon, z.Name)
				return d
			}
		}
	}

	d.Safe = true
	return d
}

type namedValue struct {
	name string
	v    float64
}

func firstNonFinite(p MissionParams) string {
	values := []namedValue{
		{"battery", p.BatteryPercent},
		{"wind speed", p.WindSpeed},
		{"visibility", p.Visibility},
		{"planned altitude", p.PlannedAltitude},
		{"route distance", p.RouteDistanceKm},
		{"start", p.Start.Lat}, {"start", p.Start.Lon},
		{"destination", p.Destination.Lat}, {"destination", p.Destination.Lon},
	}
	for _, c := range p.Via {
		values = append(values, namedValue{"via", c.Lat}, namedValue{"via", c.Lon})
	}
	for _, x := range values {
		if math.IsNaN(x.v) || math.IsInf(x.v, 0) {
			return x.name
		}
	}
	return ""
}
