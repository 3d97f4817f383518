package apperrors

import (
	"errors"
	"net/http"
)

// HTTPStatus maps an error to the HTTP status the API surface should
// return, following the teacher's mapServiceError pattern: typed errors
// map to specific statuses, anything else is an opaque 500.
func HTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case KindValidation, KindPayloadAssembly:
			return http.StatusBadRequest
		case KindUpstreamPermanent, KindUpstreamTransient:
			return http.StatusBadGateway
		case KindStorage:
			return http.StatusInternalServerError
		case KindPhaseInternal:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

// SupportCode extracts the support code from err, if it carries one.
func SupportCode(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.SupportCode
	}
	return ""
}
