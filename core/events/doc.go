// Package events defines the events published on the internal bus.
//
//   - QueueSnapshot: pending missions with their scores, lowest first
//   - StatusSnapshot: aggregated drone status
//   - PhaseChanged: dispatch sequence transition or step result
//   - SafetyEvaluated: safety gate decision for a candidate
//   - MissionResolved: final outcome of a scheduling pass
package events
