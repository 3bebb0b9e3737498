package handlers

import (
	"net/http"

	"github.com/skifli/bruty/internal/apperror"
	"github.com/skifli/bruty/internal/server/middleware"
)

// httpErrorResponder is the pluggable error-response strategy used by
// respondWithError; tests swap it out to observe what handlers do on
// failure without asserting on a specific wire format.
var httpErrorResponder = defaultHTTPErrorResponder

func defaultHTTPErrorResponder(w http.ResponseWriter, r *http.Request, err error) {
	apperror.RespondWithError(w, middleware.RequestIDFromContext(r.Context()), err)
}

// SetHTTPErrorResponder overrides how respondWithError renders an
// error. Passing nil restores the default.
func SetHTTPErrorResponder(responder func(http.ResponseWriter, *http.Request, error)) {
	if responder == nil {
		httpErrorResponder = defaultHTTPErrorResponder
		return
	}
	httpErrorResponder = responder
}

// ResetHTTPErrorResponder restores the default responder.
func ResetHTTPErrorResponder() {
	httpErrorResponder = defaultHTTPErrorResponder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}
