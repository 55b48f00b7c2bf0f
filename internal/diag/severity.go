package diag

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	// SevInfo is for informational diagnostics.
	SevInfo Severity = iota
	// SevWarning is for warning diagnostics.
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARNING"
	case SevError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// FromLevel maps a compiler level string ("error", "warning", ...) onto a
// Severity, defaulting to SevInfo for anything unrecognized.
func FromLevel(level string) Severity {
	switch level {
	case "error", "error: internal compiler error":
		return SevError
	case "warning":
		return SevWarning
	default:
		return SevInfo
	}
}
