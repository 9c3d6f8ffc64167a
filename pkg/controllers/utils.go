package controllers

import (
	"errors"

	"github.com/keybrokerhq/keybroker/pkg/errs"
)

// errToHTTPStatus maps service errors to HTTP status codes. Service
// errors may be wrapped, hence errors.Is instead of plain equality.
func errToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, errs.ErrHandleNotFound),
		errors.Is(err, errs.ErrProviderNotFound):
		return 404
	case errors.Is(err, errs.ErrValidateBadRequest),
		errors.Is(err, errs.ErrUnsupportedAlgorithm):
		return 400
	case errors.Is(err, errs.ErrUsagePolicyViolation):
		return 403
	case errors.Is(err, errs.ErrHandleOwnershipMismatch):
		return 409
	case errors.Is(err, errs.ErrHandleAlreadyDestroyed):
		return 410
	case errors.Is(err, errs.ErrOperationTimeout):
		return 504
	case errors.Is(err, errs.ErrProviderFailure):
		return 502
	default:
		return 500
	}
}
