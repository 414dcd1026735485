package directory

import "errors"

// Sentinel errors. Callers classify failures with errors.Is.
var (
	ErrInvalidIdentifier   = errors.New("invalid thing identifier")
	ErrIdentifierMismatch  = errors.New("document identifier does not match the target identifier")
	ErrNotFound            = errors.New("not found")
	ErrInvalidDocument     = errors.New("invalid thing description")
	ErrUnsupportedQuery    = errors.New("unsupported query")
	ErrUnsupportedFormat   = errors.New("unsupported result format")
	ErrStoreFailure        = errors.New("store failure")
	ErrNotificationFailure = errors.New("notification failure")
)
