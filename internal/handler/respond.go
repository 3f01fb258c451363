package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/trafficwise/platform/internal/domain"
)

// ErrorBody is the JSON shape of every error response. Redirect names the
// route a client should navigate to, when there is one.
type ErrorBody struct {
	Code     string       `json:"code"`
	Message  string       `json:"message"`
	Redirect domain.Route `json:"redirect,omitempty"`
}

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// RespondError writes a JSON error response, detecting domain.AppError for status codes.
func RespondError(w http.ResponseWriter, err error) {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		RespondJSON(w, appErr.Status, ErrorBody{
			Code:     appErr.Code,
			Message:  appErr.Message,
			Redirect: appErr.Redirect,
		})
		return
	}
	RespondJSON(w, http.StatusInternalServerError, ErrorBody{
		Code:    domain.CodeInternal,
		Message: "internal server error",
	})
}

const maxJSONBody = 1 << 20

// DecodeJSON reads and decodes a JSON request body of at most 1 MiB into dst.
func DecodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst)
}

// RespondBadBody reports an undecodable request body.
func RespondBadBody(w http.ResponseWriter) {
	RespondError(w, domain.ErrValidation("invalid request body"))
}
