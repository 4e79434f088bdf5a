package parcel

import "github.com/pkg/errors"

var (
	// ErrMalformedParcel means the sequence prefix (or header body) could not be parsed; the parcel is dropped
	ErrMalformedParcel = errors.New("malformed parcel")
	// ErrOutOfRangeSequence means the parcel does not belong to an active transfer; it is ignored
	ErrOutOfRangeSequence = errors.New("sequence out of range")
	// ErrIntegrityMismatch means the recomputed digest differs from the transmitted one
	ErrIntegrityMismatch = errors.New("integrity mismatch")
	// ErrTransportFailure wraps a failed write or read of a single parcel
	ErrTransportFailure = errors.New("transport failure")
	// ErrPayloadTooLarge means the payload needs more sequence numbers than the prefix can hold
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrHeaderOverflow means the header parcel does not fit in one MTU
	ErrHeaderOverflow = errors.New("header parcel exceeds mtu")
	// ErrInvalidMTU means the MTU leaves no room after the sequence prefix
	ErrInvalidMTU = errors.New("mtu too small")
)

// Is reports whether err was caused by target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// TransportError is a failed read or write of one parcel. It matches ErrTransportFailure
// and unwraps to the transport's own error.
type TransportError struct {
	Op  string
	Err error
}

func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error() + ": " + ErrTransportFailure.Error()
}

func (e *TransportError) Is(target error) bool { return target == ErrTransportFailure }

func (e *TransportError) Unwrap() error { return e.Err }

// Cause lets errors.Cause reach the transport error
func (e *TransportError) Cause() error { return e.Err }
