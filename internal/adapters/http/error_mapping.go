package httpadapter

import (
	"net/http"

	"github.com/farsight/personfinder/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrPersonNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrNoFaceFound):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrNoPersonDetected):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
