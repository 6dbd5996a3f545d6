package poller

import "errors"

var (
	// ErrOfferNotFound means a successful full fetch no longer lists the offer.
	ErrOfferNotFound = errors.New("trade offer not found")

	// ErrTimeout means the deadline passed before the offer changed state.
	ErrTimeout = errors.New("trade offer wait timed out")

	// ErrCanceled means the caller's context was canceled first. The
	// returned error also wraps context.Cause of that context.
	ErrCanceled = errors.New("trade offer wait canceled")

	// ErrClosed is returned by Subscribe after Stop, and fails every
	// subscription still pending when Stop runs.
	ErrClosed = errors.New("poller closed")

	ErrMissingAccount    = errors.New("account handle is required")
	ErrMissingAccountKey = errors.New("account key is required")
	ErrMissingOfferID    = errors.New("offer id is required")
	ErrUnknownAccount    = errors.New("unknown account")
	ErrInvalidInterval   = errors.New("polling interval must be positive")
)
