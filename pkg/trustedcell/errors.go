package trustedcell

// errors.go collects the sentinel errors Core returns: plain errors.New +
// sentinel-var values rather than a custom error-code enum. Internal
// package errors are wrapped with fmt.Errorf("...: %w", Err*) so that
// callers can errors.Is against these.
//
// © 2025 trustedcell authors. MIT License.

import "errors"

var (
	// ErrInvalid is returned for malformed input: an over-long identifier,
	// category, owner, or action.
	ErrInvalid = errors.New("trustedcell: invalid argument")

	// ErrDenied is returned when the host (or a hard-deny rule) refuses an
	// operation.
	ErrDenied = errors.New("trustedcell: denied")

	// ErrBusy is returned when a host channel is already attached to a
	// different holder.
	ErrBusy = errors.New("trustedcell: host channel already attached")

	// ErrCancelled is returned when a blocking call's context is done
	// before the operation could complete.
	ErrCancelled = errors.New("trustedcell: cancelled")

	// ErrNotReady is returned when an operation requires a currently
	// attached host and none is attached (or the caller is not it).
	ErrNotReady = errors.New("trustedcell: host channel not ready")

	// ErrNoData is returned when a read/probe finds nothing to return.
	ErrNoData = errors.New("trustedcell: no data")
)
