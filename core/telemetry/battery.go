package telemetry

import "gonum.org/v1/gonum/stat"

// PercentFromVoltage maps a pack voltage linearly onto [0,100] between the
// empty and full voltages. Out of range voltages are clamped.
func PercentFromVoltage(v, empty, full float64) float64 {
	if full <= empty {
		return 0
	}
	return clampPercent((v - empty) / (full - empty) * 100)
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// voltageWindow keeps the most recent voltage samples so a single sagging
// reading under load does not swing the derived percentage.
type voltageWindow struct {
	size    int
	samples []float64
}

func (w *voltageWindow) add(v float64) float64 {
	size := w.size
	if size <= 0 {
		size = 1
	}
	w.samples = append(w.samples, v)
	if len(w.samples) > size {
		w.samples = w.samples[len(w.samples)-size:]
	}
	return stat.Mean(w.samples, nil)
}
