package server

import (
	"net/http"

	apperrors "github.com/refreshrelay/refreshrelay/internal/errors"
)

// HandleError is the central responder for every error the server writes.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
