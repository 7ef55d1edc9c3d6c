package telemetry

import (
	"context"
	"errors"
	"time"
)

// MessageKind identifies a flight controller message type.
type MessageKind string

const (
	KindGPSRaw          MessageKind = "GPS_RAW_INT"
	KindGPSGlobalOrigin MessageKind = "GPS_GLOBAL_ORIGIN"
	KindGlobalPosition  MessageKind = "GLOBAL_POSITION_INT"
	KindSysStatus       MessageKind = "SYS_STATUS"
	KindVFRHUD          MessageKind = "VFR_HUD"
	KindHeartbeat       MessageKind = "HEARTBEAT"

	// SourceDerived marks values computed locally rather than reported.
	SourceDerived MessageKind = "DERIVED"
)

// locationChain is the fallback order for position fixes: high rate raw GPS,
// then the coarse global origin, then the fused global position.
var locationChain = []MessageKind{KindGPSRaw, KindGPSGlobalOrigin, KindGlobalPosition}

// Message is a decoded flight controller message. Only the fields relevant to
// its kind are set; pointer fields are nil when the message does not carry
// them. Coordinates are decimal degrees and altitude is metres relative to
// home.
type Message struct {
	Kind             MessageKind
	Lat              float64
	Lon              float64
	Alt              float64
	Heading          float64
	FixType          *int
	BatteryRemaining *float64
	VoltageV         *float64
	Airspeed         *float64
	Charging         *bool
	Armed            bool
	Mode             string
	Received         time.Time
}

var (
	// ErrLinkDown is returned when the link is closed or the heartbeat is stale.
	ErrLinkDown = errors.New("telemetry: link down")
	// ErrNoMessage is returned when no message of the requested kind arrived
	// before the receive deadline.
	ErrNoMessage = errors.New("telemetry: no message")
)

// Link is the narrow read capability the acquirer needs from the vehicle
// link. Implementations serialise access to the underlying stream and must
// honour ctx deadlines.
type Link interface {
	Connected() bool
	Receive(ctx context.Context, kind MessageKind) (Message, error)
}
