package httpx

import (
	"errors"
	"net/http"

	"github.com/gearbox-erp/gearbox/internal/platform/db"
)

// RespondError is the fallback for errors a handler does not map itself.
// Transient transaction conflicts carry a Retry-After hint so callers can
// resubmit; anything else stays opaque.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrTxConflict):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusConflict, "Concurrent Modification", "the resource was modified concurrently, retry the request")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
