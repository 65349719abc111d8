package server

import (
	"net/http"

	"github.com/hession/calcmate/internal/dispatch"
)

// HTTPStatus maps an invocation result to its response status code
func HTTPStatus(res dispatch.Result) int {
	if res.OK() {
		return http.StatusOK
	}
	switch res.Kind {
	case dispatch.UnknownOperation:
		return http.StatusNotFound
	case dispatch.MissingArgument, dispatch.InvalidArgumentType, dispatch.InvalidRequest:
		return http.StatusBadRequest
	case dispatch.DivisionByZero, dispatch.InvalidDomain:
		return http.StatusUnprocessableEntity
	case dispatch.RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
