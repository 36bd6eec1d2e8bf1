package apperrors

import "net/http"

// HTTPStatus maps an error's kind to the status code httpapi returns,
// per the kind table (§7): 200/404/409/422/500/503/504.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusUnprocessableEntity
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsTransient(err):
		return http.StatusServiceUnavailable
	case IsCrypto(err):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
