package interfaces

import "errors"

// Error kinds. Components wrap these so callers can classify failures with errors.Is.
var (
	// ErrProviderUnavailable is returned when no wallet capability is present.
	ErrProviderUnavailable = errors.New("wallet provider unavailable")

	// ErrUserRejected is returned when authorization is denied or no accounts are exposed.
	ErrUserRejected = errors.New("user rejected authorization")

	// ErrBindingUnavailable is returned when an operation needs a registry handle and none exists.
	ErrBindingUnavailable = errors.New("registry binding unavailable")

	// ErrDescriptorLoadFailed is returned when the registry descriptor cannot be fetched or parsed.
	ErrDescriptorLoadFailed = errors.New("registry descriptor load failed")

	// ErrRemoteCallFailed is returned when a submission or read against the registry throws.
	ErrRemoteCallFailed = errors.New("remote call failed")

	// ErrTransactionFailed is returned when a confirmation reports a non-success status.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrTimeout is returned when a confirmation wait exceeds the configured bound.
	ErrTimeout = errors.New("confirmation timed out")

	// ErrInvalidInput is returned when an operation argument cannot be converted for the registry.
	ErrInvalidInput = errors.New("invalid input")
)

// Descriptor source errors.
var (
	// ErrContentNotFound is returned when a descriptor source does not hold the document.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a descriptor source cannot be reached.
	ErrBackendUnavailable = errors.New("descriptor source unavailable")

	// ErrInvalidLocationURI is returned when a descriptor location cannot be parsed.
	ErrInvalidLocationURI = errors.New("invalid location URI")
)
