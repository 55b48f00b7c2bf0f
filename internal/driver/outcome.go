package driver

// Outcome is the terminal state of a whole run.
type Outcome uint8

const (
	// OutcomeConverged means the project compiles with no relevant
	// diagnostics left (or, in dry-run, the single pass completed).
	OutcomeConverged Outcome = iota
	// OutcomeStalled means diagnostics remain but none match the known
	// transformation, or an iteration made no forward progress.
	OutcomeStalled
	// OutcomeExhausted means the iteration cap was reached before
	// convergence.
	OutcomeExhausted
	// OutcomeAborted means an unrecoverable error (malformed compiler
	// output, I/O failure, cancellation) short-circuited the loop.
	OutcomeAborted
	// OutcomeCompilerUnavailable means cargo could not be spawned at all.
	OutcomeCompilerUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConverged:
		return "converged"
	case OutcomeStalled:
		return "stalled"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeAborted:
		return "aborted"
	case OutcomeCompilerUnavailable:
		return "compiler unavailable"
	}
	return "unknown"
}

// Success reports whether the run should exit with status zero.
func (o Outcome) Success() bool {
	return o == OutcomeConverged
}
