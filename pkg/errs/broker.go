package errs

import "errors"

var (
	ErrConfiguration error = errors.New("invalid broker configuration")

	ErrProviderNotFound error = errors.New("crypto provider not found")
	ErrProviderFailure  error = errors.New("crypto provider failure")

	ErrHandleNotFound          error = errors.New("key handle not found")
	ErrHandleOwnershipMismatch error = errors.New("key handle not owned by provider")
	ErrHandleAlreadyDestroyed  error = errors.New("key handle already destroyed")

	ErrOperationTimeout     error = errors.New("operation timed out")
	ErrUsagePolicyViolation error = errors.New("operation not permitted by key usage policy")
	ErrUnsupportedAlgorithm error = errors.New("unsupported algorithm")

	ErrValidateBadRequest error = errors.New("struct validation error")
)
