// Package httpapi exposes the engine over a chi router under /api/v1/auth.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MrEthical07/medAuth"
	"github.com/MrEthical07/medAuth/middleware"
	"github.com/MrEthical07/medAuth/permission"
)

const (
	// BasePath is where Routes mounts the auth endpoints.
	BasePath = "/api/v1/auth"

	maxBodyBytes   = 1 << 20
	requestTimeout = 30 * time.Second
)

var errInvalidBody = errors.New("invalid request body")

// Handler serves the auth API.
type Handler struct {
	engine *medAuth.Engine
	logger *slog.Logger
}

// New returns a Handler. A nil logger falls back to slog.Default.
func New(engine *medAuth.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// Routes returns a router with the auth API mounted at BasePath.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Route(BasePath, h.Register)
	return r
}

// Register installs the auth endpoints on r.
func (h *Handler) Register(r chi.Router) {
	authenticated := middleware.Authenticate(h.engine)

	r.Post("/login", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/forgot-password", h.handleForgotPassword)
	r.Post("/reset-password", h.handleResetPassword)
	r.With(middleware.Optional(h.engine)).Post("/register", h.handleRegister)

	r.With(authenticated).Post("/logout", h.handleLogout)
	r.With(authenticated).Post("/change-password", h.handleChangePassword)
	r.With(authenticated).Get("/me", h.handleMe)

	r.Route("/users/{id}", func(r chi.Router) {
		r.Use(authenticated)
		r.Post("/approve", h.statusHandler(h.engine.ApproveAccount))
		r.Post("/suspend", h.statusHandler(h.engine.SuspendAccount))
		r.Post("/deactivate", h.statusHandler(h.engine.DeactivateAccount))
		r.Post("/unlock", h.statusHandler(h.engine.UnlockAccount))
	})

	r.With(middleware.Protect(h.engine, middleware.RequirePatientDataAccess(h.engine, "patientId"))).
		Get("/patients/{patientId}/records", h.handlePatientRecords)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.engine.Login(r.Context(), medAuth.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		h.writeError(w, r, medAuth.ErrNoToken)
		return
	}

	res, err := h.engine.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
	SessionID    string `json:"sessionId"`
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())

	// An empty body logs out every session.
	var req logoutRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	err := h.engine.Logout(r.Context(), medAuth.LogoutRequest{
		AccountID:    p.ID,
		RefreshToken: req.RefreshToken,
		SessionID:    req.SessionID,
		IP:           middleware.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	var role permission.Role
	if req.Role != "" {
		parsed, err := permission.ParseRole(req.Role)
		if err != nil {
			h.writeError(w, r, medAuth.ErrInvalidRole)
			return
		}
		role = parsed
	}

	var actor *medAuth.Principal
	if p, ok := middleware.PrincipalFrom(r.Context()); ok {
		actor = &p
	}

	acc, err := h.engine.RegisterUser(r.Context(), medAuth.RegisterRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      role,
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, acc)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	msg, err := h.engine.ForgotPassword(r.Context(), req.Email, middleware.ClientIP(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, msg)
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.engine.ResetPassword(r.Context(), req.Token, req.NewPassword, middleware.ClientIP(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password reset successfully")
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())

	var req changePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.engine.ChangePassword(r.Context(), p.ID, req.CurrentPassword, req.NewPassword, middleware.ClientIP(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password changed successfully")
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())

	acc, err := h.engine.GetAccount(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, acc)
}

type statusFunc func(ctx context.Context, actor *medAuth.Principal, targetID string) (*medAuth.PublicAccount, error)

// statusHandler adapts an administrative account transition. A missing target
// is a 404 here, unlike in the authentication gate.
func (h *Handler) statusHandler(fn statusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := middleware.PrincipalFrom(r.Context())

		acc, err := fn(r.Context(), &p, chi.URLParam(r, "id"))
		if errors.Is(err, medAuth.ErrAccountNotFound) {
			middleware.WriteJSON(w, http.StatusNotFound, middleware.ErrorBody{Error: "USER_NOT_FOUND", Message: "User not found"})
			return
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, acc)
	}
}

type recordsResponse struct {
	PatientID string `json:"patientId"`
	Emergency bool   `json:"emergency"`
	Records   []any  `json:"records"`
}

// handlePatientRecords returns an empty record list. Record storage lives
// outside this service; the route demonstrates the patient-data gate.
func (h *Handler) handlePatientRecords(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, recordsResponse{
		PatientID: chi.URLParam(r, "patientId"),
		Emergency: middleware.IsEmergency(r.Context()),
		Records:   []any{},
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, false)
}

// decodeOptional accepts an empty body and leaves dst untouched.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, true)
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", chimw.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
		middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{Error: "INVALID_REQUEST", Message: errInvalidBody.Error()})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := middleware.Describe(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"request_id", chimw.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
	}
	middleware.WriteJSON(w, status, body)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	middleware.WriteJSON(w, status, map[string]string{"message": msg})
}
