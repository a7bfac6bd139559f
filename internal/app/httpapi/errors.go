package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/classforge/enrollment/internal/app/apperr"
)

// errorBody is the wire shape of every failure response.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// statusOf maps domain error codes to HTTP statuses. Anything without a code
// is an unexpected storage failure and surfaces as a gateway error.
func statusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeDuplicateActive,
		apperr.CodeGroupNotOpen,
		apperr.CodeGroupFull,
		apperr.CodeInvalidTransition,
		apperr.CodeInterviewRequired,
		apperr.CodeInterviewRejected,
		apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeInvalidState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeDomainError serializes a service failure. Unexpected errors are not
// interpreted: the caller sees a generic message while the real error is
// logged by the handler.
func (h *handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var domain *apperr.Error
	if !errors.As(err, &domain) {
		h.log.WithError(err).Errorf("unexpected failure on %s %s", r.Method, r.URL.Path)
		writeErrorCode(w, http.StatusBadGateway, "internal", "internal failure")
		return
	}
	writeErrorCode(w, statusOf(domain.Code), string(domain.Code), domain.Message)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
