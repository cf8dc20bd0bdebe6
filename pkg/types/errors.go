package types

import "errors"

// Sentinel errors identifying the taxonomy of failures the engine and its
// collaborators can report. Callers should compare with errors.Is, since
// every returned error wraps one of these via fmt.Errorf's %w verb.
var (
	// ErrInvalidInput marks malformed bar data: non-ascending timestamps,
	// duplicate bars, or an OHLC/volume/direction invariant violation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig marks a RunConfig or risk.Manager constructor
	// argument outside its valid domain.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrUnknownIndicator marks a strategy referencing an indicator kind
	// that has neither a built-in nor a registered custom kernel.
	ErrUnknownIndicator = errors.New("unknown indicator")

	// ErrInvalidIndicatorParams marks an indicator definition whose
	// parameters fail validation (e.g. a non-positive period).
	ErrInvalidIndicatorParams = errors.New("invalid indicator params")

	// ErrIndicatorKernelError marks a failure raised by a kernel while
	// computing a column, including a custom expression evaluation error.
	ErrIndicatorKernelError = errors.New("indicator kernel error")

	// ErrInvalidStrategy marks a strategy definition that fails to
	// compile: an unknown condition operator or stop-loss kind, or a
	// declared indicator that cannot be computed. Operands, and references
	// to indicators the strategy does not declare, are not checked.
	ErrInvalidStrategy = errors.New("invalid strategy")

	// ErrOverlap marks a leverage bracket list containing overlapping
	// notional ranges.
	ErrOverlap = errors.New("overlapping leverage brackets")

	// ErrGap marks a leverage bracket list with a gap between consecutive
	// notional ranges.
	ErrGap = errors.New("gap in leverage brackets")
)
