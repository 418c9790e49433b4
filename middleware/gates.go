package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/medAuth"
	"github.com/MrEthical07/medAuth/permission"
)

// EmergencyHeader requests the emergency override on patient-data routes. It
// only takes effect for roles holding MEDICAL_RECORDS.EMERGENCY_ACCESS.
const EmergencyHeader = "X-Emergency-Access"

const maxInspectedBody = 1 << 20

// RequireRole admits principals whose role is one of roles.
func RequireRole(roles ...permission.Role) Gate {
	return func(r *http.Request, p medAuth.Principal) (*http.Request, error) {
		if !slices.Contains(roles, p.Role) {
			return nil, medAuth.ErrInsufficientPermissions
		}
		return r, nil
	}
}

// RequirePermission admits principals whose live role holds perm.
func RequirePermission(engine *medAuth.Engine, perm permission.Permission) Gate {
	return func(r *http.Request, p medAuth.Principal) (*http.Request, error) {
		if !engine.HasPermission(&p, perm) {
			return nil, medAuth.ErrInsufficientPermissions
		}
		return r, nil
	}
}

// RequirePatientDataAccess reads the patient id named field from the chi path
// parameters, then the JSON body, then the query string, and asks the engine
// for a patient-data decision. A granted emergency override is visible to
// handlers through IsEmergency.
func RequirePatientDataAccess(engine *medAuth.Engine, field string) Gate {
	return func(r *http.Request, p medAuth.Principal) (*http.Request, error) {
		patientID, r, err := patientIDFrom(r, field)
		if err != nil {
			return nil, err
		}
		if patientID == "" {
			return nil, ErrPatientIDRequired
		}

		emergency, _ := strconv.ParseBool(strings.TrimSpace(r.Header.Get(EmergencyHeader)))
		decision, err := engine.AuthorizePatientData(r.Context(), &p, patientID, emergency, medAuth.RequestMeta{
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
		})
		if err != nil {
			return nil, err
		}
		if decision.Emergency {
			r = r.WithContext(context.WithValue(r.Context(), emergencyContextKey{}, true))
		}
		return r, nil
	}
}

// replayBody serves the inspected prefix before the unread remainder and
// closes the original body.
type replayBody struct {
	io.Reader
	io.Closer
}

// patientIDFrom returns the id and a request whose body can be read again.
func patientIDFrom(r *http.Request, field string) (string, *http.Request, error) {
	if id := chi.URLParam(r, field); id != "" {
		return id, r, nil
	}

	if r.Body != nil && r.Body != http.NoBody && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxInspectedBody))
		if err != nil {
			return "", r, err
		}
		r.Body = replayBody{Reader: io.MultiReader(bytes.NewReader(raw), r.Body), Closer: r.Body}

		// A body past the inspection limit is handed on untouched.
		var body map[string]any
		if len(raw) < maxInspectedBody && json.Unmarshal(raw, &body) == nil {
			switch v := body[field].(type) {
			case string:
				if v != "" {
					return v, r, nil
				}
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64), r, nil
			}
		}
	}

	return r.URL.Query().Get(field), r, nil
}
