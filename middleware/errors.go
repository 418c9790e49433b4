package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/medAuth"
)

// ErrPatientIDRequired is returned by RequirePatientDataAccess when the
// request names no patient.
var ErrPatientIDRequired = errors.New("patient id required")

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	// Details lists violated password rules.
	Details []string `json:"details,omitempty"`
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Order matters: LoginError kinds share sentinels with plain errors.
var errorMappings = []errorMapping{
	{medAuth.ErrNoToken, http.StatusUnauthorized, "NO_TOKEN", "Authentication required"},
	{medAuth.ErrTokenExpired, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired"},
	{medAuth.ErrInvalidToken, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token"},
	{medAuth.ErrAccountNotFound, http.StatusUnauthorized, "USER_NOT_FOUND", "User not found"},
	{medAuth.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials"},
	{medAuth.ErrAccountLocked, http.StatusLocked, "ACCOUNT_LOCKED", "Account is locked"},
	{medAuth.ErrAccountInactive, http.StatusForbidden, "ACCOUNT_INACTIVE", "Account is inactive"},
	{medAuth.ErrInsufficientPermissions, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS", "Insufficient permissions"},
	{medAuth.ErrLoginRateLimited, http.StatusTooManyRequests, "RATE_LIMITED", "Too many login attempts"},
	{medAuth.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests"},
	{medAuth.ErrDuplicateEmail, http.StatusConflict, "DUPLICATE_EMAIL", "Email already registered"},
	{medAuth.ErrInvalidAccountState, http.StatusConflict, "INVALID_ACCOUNT_STATE", "Operation not allowed in the account's current state"},
	{medAuth.ErrWeakPassword, http.StatusBadRequest, "WEAK_PASSWORD", "Password does not meet requirements"},
	{medAuth.ErrSamePassword, http.StatusBadRequest, "SAME_PASSWORD", "New password must differ from current password"},
	{medAuth.ErrInvalidEmail, http.StatusBadRequest, "INVALID_EMAIL", "Invalid email"},
	{medAuth.ErrInvalidRole, http.StatusBadRequest, "INVALID_ROLE", "Invalid role"},
	{medAuth.ErrInvalidOrExpiredResetToken, http.StatusBadRequest, "INVALID_RESET_TOKEN", "Invalid or expired reset token"},
	{ErrPatientIDRequired, http.StatusBadRequest, "PATIENT_ID_REQUIRED", "Patient id required"},
	{medAuth.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Service temporarily unavailable"},
	{medAuth.ErrEngineNotReady, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Service temporarily unavailable"},
	{medAuth.ErrInternal, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"},
}

// Describe maps err to an HTTP status and error body. Unknown errors become
// a bare 500 so internal detail never reaches the client.
func Describe(err error) (int, ErrorBody) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		body := ErrorBody{Error: m.code, Message: m.message}

		var le *medAuth.LoginError
		if errors.As(err, &le) {
			body.Message = le.Error()
		}
		var weak *medAuth.WeakPasswordError
		if errors.As(err, &weak) {
			body.Details = weak.Violations
		}
		return m.status, body
	}
	return http.StatusInternalServerError, ErrorBody{Error: "INTERNAL_ERROR", Message: "Internal server error"}
}

// WriteError writes err as a JSON error response.
func WriteError(w http.ResponseWriter, err error) {
	status, body := Describe(err)
	WriteJSON(w, status, body)
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
