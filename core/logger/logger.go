package logger

// Logger exposes logging methods for common severity levels.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	// Warnw logs a warning with structured fields, used for rejected checks
	// so the inputs of the decision can be reconstructed.
	Warnw(msg string, fields map[string]any)
	Errorf(format string, args ...any)
}

// Nop discards everything. It is the default for components built without
// an explicit logger.
type Nop struct{}

func (Nop) Debugf(string, ...any)         {}
func (Nop) Debugw(string, map[string]any) {}
func (Nop) Infof(string, ...any)          {}
func (Nop) Warnf(string, ...any)          {}
func (Nop) Warnw(string, map[string]any)  {}
func (Nop) Errorf(string, ...any)         {}
