package telemetry

// Status classifies the outcome of a single telemetry read.
type Status int

const (
	// StatusOK means the value was read or derived this poll.
	StatusOK Status = iota
	// StatusUnavailable means the link is up but produced no usable data.
	StatusUnavailable
	// StatusLinkDown means the link was not attempted because it is down.
	StatusLinkDown
	// StatusDiscarded means a value was computed but rejected as implausible.
	// The reading carries the previous known value if there is one.
	StatusDiscarded
	// StatusAssumed means no data arrived and a configured default is used.
	StatusAssumed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnavailable:
		return "unavailable"
	case StatusLinkDown:
		return "link_down"
	case StatusDiscarded:
		return "discarded"
	case StatusAssumed:
		return "assumed"
	default:
		return "unknown"
	}
}

// Reading is the result of a telemetry read. Valid reports whether Value can
// be used; it is false for unknown readings so callers never mistake a zero
// value for data.
type Reading[T any] struct {
	Value  T
	Valid  bool
	Status Status
	Source MessageKind
}

func unknown[T any](s Status) Reading[T] {
	return Reading[T]{Status: s}
}
