package metrics

import "errors"

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordTelemetry forwards the event to all sinks. Every sink is tried; the
// returned error joins the individual failures.
func (m *MultiSink) RecordTelemetry(ev TelemetryEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordTelemetry(ev))
	}
	return errors.Join(errs...)
}

// RecordMission forwards mission outcomes.
func (m *MultiSink) RecordMission(ev MissionEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordMission(ev))
	}
	return errors.Join(errs...)
}

// RecordSafetyDecision forwards safety decisions.
func (m *MultiSink) RecordSafetyDecision(ev SafetyEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordSafetyDecision(ev))
	}
	return errors.Join(errs...)
}

// RecordDispatchStep forwards step outcomes.
func (m *MultiSink) RecordDispatchStep(ev DispatchStepEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordDispatchStep(ev))
	}
	return errors.Join(errs...)
}

// RecordQueue forwards to the sinks that implement QueueRecorder.
func (m *MultiSink) RecordQueue(ev QueueEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(QueueRecorder); ok {
			errs = append(errs, r.RecordQueue(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordStatus forwards to the sinks that implement StatusRecorder.
func (m *MultiSink) RecordStatus(ev StatusEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(StatusRecorder); ok {
			errs = append(errs, r.RecordStatus(ev))
		}
	}
	return errors.Join(errs...)
}
