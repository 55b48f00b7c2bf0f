package cargo

import "errors"

var (
	// ErrCompilerUnavailable means cargo itself could not be spawned.
	ErrCompilerUnavailable = errors.New("cargo executable not available")

	// ErrMalformedOutput means the check output claimed success or
	// failure but its structured fields could not be located. This is a
	// hard stop: guessing at unparseable diagnostics risks patching the
	// wrong bytes.
	ErrMalformedOutput = errors.New("malformed cargo output")
)
