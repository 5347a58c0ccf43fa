package rpcapi

import (
	"net/http"

	"github.com/teaclave-go/platform/internal/taclerr"
)

// httpStatus maps the transport-independent error taxonomy of spec §7 to a
// status code, the one place either router translates a taclerr.Category.
func httpStatus(err error) int {
	switch taclerr.Classify(err) {
	case taclerr.CategoryAuthentication:
		return http.StatusUnauthorized
	case taclerr.CategoryPermissionDenied:
		return http.StatusForbidden
	case taclerr.CategoryNotFound:
		return http.StatusNotFound
	case taclerr.CategoryConflict:
		return http.StatusConflict
	case taclerr.CategoryInvalidArgument:
		return http.StatusBadRequest
	case taclerr.CategoryCrypto:
		return http.StatusUnprocessableEntity
	case taclerr.CategoryScheduling:
		return http.StatusServiceUnavailable
	case taclerr.CategoryExecution:
		return http.StatusUnprocessableEntity
	case taclerr.CategoryTimeout:
		return http.StatusGatewayTimeout
	case taclerr.CategoryStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the sanitized JSON envelope returned on any handler error:
// only the category and message ever cross the wire, never a cause.
type errorBody struct {
	Error string `json:"error"`
}
