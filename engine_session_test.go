package medAuth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/medAuth"
	"github.com/MrEthical07/medAuth/jwt"
	"github.com/MrEthical07/medAuth/permission"
)

func login(t *testing.T, h *harness, email string) *medAuth.LoginResult {
	t.Helper()
	res, err := h.engine.Login(context.Background(), medAuth.LoginRequest{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return res
}

func verifier(t *testing.T, h *harness) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{
		AccessSecret:  []byte(testAccess),
		RefreshSecret: []byte(testRefresh),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "medauth",
		Audience:      "medauth-api",
		Now:           h.clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestRefreshCarriesLiveRole(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u1", "staff@hospital.org", permission.Receptionist, medAuth.StatusActive)
	res := login(t, h, "staff@hospital.org")

	acc, _ := h.accounts.GetByID(context.Background(), "u1")
	acc.Role = permission.Nurse
	h.accounts.Put(*acc)

	h.clock.Advance(time.Minute)
	out, err := h.engine.RefreshToken(context.Background(), res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if out.TokenType != "Bearer" || out.AccessToken == "" {
		t.Fatalf("unexpected refresh result %+v", out)
	}

	claims, err := verifier(t, h).VerifyAccess(out.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.Role != "NURSE" {
		t.Fatalf("refreshed role = %q", claims.Role)
	}
	var hasEmergency bool
	for _, p := range claims.Permissions {
		if p == string(permission.MedicalRecordsEmergencyAccess) {
			hasEmergency = true
		}
	}
	if !hasEmergency {
		t.Fatalf("permissions not recomputed: %v", claims.Permissions)
	}
	h.waitAudit(t, "TOKEN_REFRESH")
}

func TestRefreshFailures(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u1", "doc@hospital.org", permission.Doctor, medAuth.StatusActive)
	res := login(t, h, "doc@hospital.org")
	ctx := context.Background()

	if _, err := h.engine.RefreshToken(ctx, "garbage"); !errors.Is(err, medAuth.ErrInvalidToken) {
		t.Fatalf("garbage token err = %v", err)
	}
	if _, err := h.engine.RefreshToken(ctx, res.Tokens.AccessToken); !errors.Is(err, medAuth.ErrInvalidToken) {
		t.Fatalf("access token used as refresh err = %v", err)
	}

	if _, err := h.engine.SuspendAccount(ctx, nil, "u1"); !errors.Is(err, medAuth.ErrInsufficientPermissions) {
		t.Fatalf("nil actor suspend err = %v", err)
	}
	if err := h.accounts.SetStatus(ctx, "u1", medAuth.StatusSuspended, h.clock.Now()); err != nil {
		t.Fatal(err)
	}
	_, err := h.engine.RefreshToken(ctx, res.Tokens.RefreshToken)
	if !errors.Is(err, medAuth.ErrInvalidToken) {
		t.Fatalf("inactive account refresh err = %v", err)
	}
	ev := h.waitAudit(t, "TOKEN_REFRESH_FAILED")
	for ev.Metadata["reason"] != "ACCOUNT_INACTIVE" {
		ev = h.waitAudit(t, "TOKEN_REFRESH_FAILED")
	}

	h.clock.Advance(8 * 24 * time.Hour)
	if _, err := h.engine.RefreshToken(ctx, res.Tokens.RefreshToken); !errors.Is(err, medAuth.ErrTokenExpired) {
		t.Fatalf("expired refresh err = %v", err)
	}
}

func TestLogoutSingleSessionAndAll(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u1", "doc@hospital.org", permission.Doctor, medAuth.StatusActive)
	ctx := context.Background()

	first := login(t, h, "doc@hospital.org")
	h.clock.Advance(time.Second)
	second := login(t, h, "doc@hospital.org")

	if err := h.engine.Logout(ctx, medAuth.LogoutRequest{AccountID: "u1", RefreshToken: first.Tokens.RefreshToken}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := h.engine.RefreshToken(ctx, first.Tokens.RefreshToken); !errors.Is(err, medAuth.ErrInvalidToken) {
		t.Fatalf("revoked token refresh err = %v", err)
	}
	if _, err := h.engine.RefreshToken(ctx, second.Tokens.RefreshToken); err != nil {
		t.Fatalf("other session must survive: %v", err)
	}
	ev := h.waitAudit(t, "LOGOUT")
	if ev.Metadata["scope"] != "session" || ev.Metadata["sessionId"] != first.Tokens.SessionID {
		t.Fatalf("unexpected logout metadata %v", ev.Metadata)
	}

	h.clock.Advance(time.Second)
	if err := h.engine.Logout(ctx, medAuth.LogoutRequest{AccountID: "u1"}); err != nil {
		t.Fatalf("Logout all: %v", err)
	}
	if _, err := h.engine.RefreshToken(ctx, second.Tokens.RefreshToken); !errors.Is(err, medAuth.ErrInvalidToken) {
		t.Fatalf("logout-all should revoke every session, got %v", err)
	}
	ev = h.waitAudit(t, "LOGOUT")
	if ev.Metadata["scope"] != "all" {
		t.Fatalf("scope = %q", ev.Metadata["scope"])
	}

	h.clock.Advance(time.Second)
	third := login(t, h, "doc@hospital.org")
	if _, err := h.engine.RefreshToken(ctx, third.Tokens.RefreshToken); err != nil {
		t.Fatalf("session issued after logout-all must work: %v", err)
	}
}

func TestLogoutBySessionID(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u1", "doc@hospital.org", permission.Doctor, medAuth.StatusActive)
	res := login(t, h, "doc@hospital.org")
	ctx := context.Background()

	if err := h.engine.Logout(ctx, medAuth.LogoutRequest{AccountID: "u1", SessionID: res.Tokens.SessionID}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := h.engine.RefreshToken(ctx, res.Tokens.RefreshToken); !errors.Is(err, medAuth.ErrInvalidToken) {
		t.Fatalf("refresh after session logout err = %v", err)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u1", "doc@hospital.org", permission.Doctor, medAuth.StatusActive)
	res := login(t, h, "doc@hospital.org")
	ctx := context.Background()

	if _, err := h.engine.Authenticate(ctx, ""); !errors.Is(err, medAuth.ErrNoToken) {
		t.Fatalf("empty token err = %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, res.Tokens.RefreshToken); !errors.Is(err, medAuth.ErrInvalidToken) {
		t.Fatalf("refresh token as access err = %v", err)
	}

	if err := h.accounts.SetStatus(ctx, "u1", medAuth.StatusInactive, h.clock.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Authenticate(ctx, res.Tokens.AccessToken); !errors.Is(err, medAuth.ErrAccountInactive) {
		t.Fatalf("inactive account err = %v", err)
	}

	h.clock.Advance(16 * time.Minute)
	if _, err := h.engine.Authenticate(ctx, res.Tokens.AccessToken); !errors.Is(err, medAuth.ErrTokenExpired) {
		t.Fatalf("expired access err = %v", err)
	}
}
