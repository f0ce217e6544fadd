package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cyp0633/caldelete/server/storage"
)

// checkAuth enforces Basic Authentication. Returns the user ID and true if successful.
func (h *CaldavHandler) checkAuth(w http.ResponseWriter, r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		h.Logger.Info("authentication required - no auth header")
		h.requireAuth(w)
		return "", false
	}

	if !strings.HasPrefix(authHeader, "Basic ") {
		h.Logger.Error("invalid authorization header format")
		http.Error(w, "Bad Request: Invalid Authorization header format", http.StatusBadRequest)
		return "", false
	}

	encodedCredentials := strings.TrimPrefix(authHeader, "Basic ")
	decodedBytes, err := base64.StdEncoding.DecodeString(encodedCredentials)
	if err != nil {
		h.Logger.Error("failed to decode base64 credentials",
			"error", err)
		http.Error(w, "Bad Request: Invalid base64 encoding", http.StatusBadRequest)
		return "", false
	}

	username, password, ok := strings.Cut(string(decodedBytes), ":")
	if !ok {
		h.Logger.Error("invalid format for decoded credentials")
		http.Error(w, "Bad Request: Invalid credentials format", http.StatusBadRequest)
		return "", false
	}

	if username == "" {
		h.Logger.Warn("empty username provided in basic auth")
		h.requireAuth(w)
		return "", false
	}

	userID, err := h.Auth.AuthUser(username, password)
	switch {
	case err == nil:
		return userID, true
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrPermissionDenied):
		h.Logger.Warn("authentication failed",
			"user", username)
		h.requireAuth(w)
	default:
		h.Logger.Error("authentication backend failed",
			"user", username,
			"error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
	return "", false
}

// requireAuth sends a 401 Unauthorized response asking for Basic Auth.
func (h *CaldavHandler) requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s"`, h.Realm))
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
