package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// writeError writes err to the client. Errors without a code are logged
// here and surface as a generic internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if !apperrors.IsAppError(err) {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	httputil.WriteError(w, err)
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperrors.ValidationError("Request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperrors.ValidationError("Request body is required")
		case errors.As(err, &maxBytes):
			return apperrors.ValidationError("Request body too large")
		default:
			return apperrors.ValidationError("Invalid JSON body")
		}
	}
	return nil
}
