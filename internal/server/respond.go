package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fentz26/priora/internal/auth"
	"github.com/fentz26/priora/internal/errs"
)

var errForbidden = errors.New("user_id does not match the authenticated user")

// statusError carries an explicit HTTP status.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func timestamp() string {
	return time.Now().Format(time.RFC3339)
}

type errorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

func statusFor(err error) int {
	var se *statusError
	switch {
	case errors.As(err, &se):
		return se.status
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Timestamp: timestamp()})
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Validation("invalid json: %v", err)
	}
	return nil
}

// bindUser resolves the effective user for a request. With authentication
// enabled the token subject fills an empty userID and must match a given one.
func bindUser(r *http.Request, userID string) (string, error) {
	sub, ok := auth.UserID(r.Context())
	if !ok {
		return userID, nil
	}
	if userID == "" {
		return sub, nil
	}
	if userID != sub {
		return "", errForbidden
	}
	return userID, nil
}

// ownedBy reports whether a resource owned by owner is visible to the
// request. Without authentication everything is visible.
func ownedBy(r *http.Request, owner string) bool {
	sub, ok := auth.UserID(r.Context())
	return !ok || sub == owner
}

// limitParam parses the optional positive ?limit= query parameter.
func limitParam(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errs.Validation("limit must be a positive integer")
	}
	return n, nil
}
