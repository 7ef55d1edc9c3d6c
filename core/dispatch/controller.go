package dispatch

import (
	"context"
	"errors"

	"github.com/kilianp07/bloodlift/core/model"
)

// FlightController is the command capability the dispatcher needs from the
// vehicle link. Implementations serialise commands with telemetry reads.
type FlightController interface {
	Connected() bool
	SetMode(ctx context.Context, mode string) error
	Arm(ctx context.Context) error
	Takeoff(ctx context.Context, altitude float64) error
	GoTo(ctx context.Context, target model.Coordinate, altitude float64) error
	ReturnToLaunch(ctx context.Context) error
}

var (
	// ErrBusy is returned by Begin while another mission is in flight.
	ErrBusy = errors.New("dispatch: mission already in flight")
	// ErrLinkDown is returned when the controller link is lost.
	ErrLinkDown = errors.New("dispatch: link down")
	// ErrSameEndpoints rejects missions whose source is the destination.
	ErrSameEndpoints = errors.New("dispatch: source equals destination")
	// ErrNotBegun is returned by Execute when no mission was handed over.
	ErrNotBegun = errors.New("dispatch: no mission to execute")
)
