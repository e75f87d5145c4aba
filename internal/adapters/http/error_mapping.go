package httpadapter

import (
	"net/http"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrInvalidPort):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrCertificateNotFound),
		domain.IsKind(err, domain.ErrItemNotFound),
		domain.IsKind(err, domain.ErrEntryNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrOverdrawn):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
