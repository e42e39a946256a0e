// Package httpx provides HTTP response utilities.
package httpx

import (
	"net/http"

	"github.com/solara-erp/solara-erp/internal/shared"
)

// RespondError maps classified domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	status, title := statusFor(kind)
	detail := shared.UserSafeMessage(err)
	if kind == shared.KindInternal {
		detail = ""
	}
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
		Kind:   string(kind),
	})
}

func statusFor(kind shared.Kind) (int, string) {
	switch kind {
	case shared.KindValidation:
		return http.StatusBadRequest, "Validation Failed"
	case shared.KindNotFound:
		return http.StatusNotFound, "Not Found"
	case shared.KindConflict:
		return http.StatusConflict, "Conflict"
	case shared.KindProvider:
		return http.StatusBadGateway, "Billing Provider Error"
	case shared.KindConsistency:
		return http.StatusUnprocessableEntity, "Inconsistent Record"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}
