package fusion

import "errors"

var (
	// ErrNilArgument reports an absent required argument (zero Quantity,
	// nil stream, nil shape or listener).
	ErrNilArgument = errors.New("required argument is missing")

	// ErrInvalidParams reports unusable engine parameters.
	ErrInvalidParams = errors.New("invalid filter parameters")

	// ErrInvalidReliability reports a non-positive or non-finite theta.
	ErrInvalidReliability = errors.New("reliability must be positive")

	// ErrDuplicateStream reports a second stream for one quantity on one source.
	ErrDuplicateStream = errors.New("data source already has a stream for this quantity")

	// ErrUnknownStream reports a stream that was not created by this engine.
	ErrUnknownStream = errors.New("data stream does not belong to this engine")

	// ErrModeConflict reports mixing quantity-keyed and stream-keyed data.
	ErrModeConflict = errors.New("cannot mix data by quantity and data by stream")

	// ErrDimensionMismatch reports vector or grid input of inconsistent shape.
	ErrDimensionMismatch = errors.New("input dimensions do not match")

	// ErrInvalidKernel reports a kernel with non-positive width or bounds.
	ErrInvalidKernel = errors.New("invalid kernel")

	// ErrInvalidGrid reports malformed fast filter grid bounds.
	ErrInvalidGrid = errors.New("invalid grid")

	// ErrQuantityNotRequested reports a result lookup for a quantity that was
	// not part of the filter request.
	ErrQuantityNotRequested = errors.New("quantity was not requested from the filter")

	// ErrResultNotReady reports a result lookup before an asynchronous filter
	// has finished.
	ErrResultNotReady = errors.New("filter has not finished")
)
