package httpapi

import (
	"net/http"
	"strconv"

	"github.com/unimart/unimart/internal/httputil"
	"github.com/unimart/unimart/internal/middleware"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	httputil.WriteJSON(w, status, v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, err)
}

// callerID returns the authenticated user id; the auth middleware
// guarantees it is set on protected routes.
func callerID(r *http.Request) string {
	return middleware.GetUserID(r.Context())
}

// parsePageParam parses an optional non-negative page query parameter.
func parsePageParam(raw string) int {
	if raw == "" {
		return 0
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 0 {
		return 0
	}
	return page
}
