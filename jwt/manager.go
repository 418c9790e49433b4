package jwt

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest accepted signing secret in bytes.
const MinSecretLength = 32

// TokenType discriminates access from refresh tokens.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// Config defines a public type used by medAuth token issuance.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	// Now overrides the clock. Nil uses time.Now.
	Now func() time.Time
}

// Manager defines a public type used by medAuth token issuance.
//
// Manager instances are immutable after NewManager and safe for concurrent use.
type Manager struct {
	config Config
}

// Subject is the identity a token is minted for.
type Subject struct {
	ID          string
	Email       string
	Role        string
	Permissions []string
}

// Claims is the payload of both token kinds. Permissions is only populated
// for access tokens.
type Claims struct {
	Email       string    `json:"email"`
	Role        string    `json:"role,omitempty"`
	Permissions []string  `json:"perms,omitempty"`
	Type        TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Pair is the result of IssuePair.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int64
	RefreshID        string
	RefreshExpiresAt time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.AccessSecret) < MinSecretLength || len(cfg.RefreshSecret) < MinSecretLength {
		return nil, fmt.Errorf("token secrets must be at least %d bytes", MinSecretLength)
	}
	if subtle.ConstantTimeCompare(cfg.AccessSecret, cfg.RefreshSecret) == 1 {
		return nil, errors.New("access and refresh secrets must differ")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// SignAccess mints an access token carrying the subject's permission snapshot.
func (m *Manager) SignAccess(sub Subject) (string, error) {
	tok, _, err := m.sign(sub, TypeAccess)
	return tok, err
}

// SignRefresh mints a refresh token carrying only subject id and email.
func (m *Manager) SignRefresh(sub Subject) (string, error) {
	tok, _, err := m.sign(sub, TypeRefresh)
	return tok, err
}

// IssuePair mints an access and a refresh token for sub.
func (m *Manager) IssuePair(sub Subject) (Pair, error) {
	access, _, err := m.sign(sub, TypeAccess)
	if err != nil {
		return Pair{}, err
	}
	refresh, rc, err := m.sign(sub, TypeRefresh)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        int64(m.config.AccessTTL / time.Second),
		RefreshID:        rc.ID,
		RefreshExpiresAt: rc.ExpiresAt.Time,
	}, nil
}

// VerifyAccess parses an access token. It fails with ErrTokenExpired or
// ErrTokenInvalid.
func (m *Manager) VerifyAccess(tokenStr string) (*Claims, error) {
	return m.verify(tokenStr, TypeAccess)
}

// VerifyRefresh parses a refresh token. It fails with ErrTokenExpired or
// ErrTokenInvalid.
func (m *Manager) VerifyRefresh(tokenStr string) (*Claims, error) {
	return m.verify(tokenStr, TypeRefresh)
}

func (m *Manager) sign(sub Subject, typ TokenType) (string, *Claims, error) {
	if strings.TrimSpace(sub.ID) == "" {
		return "", nil, errors.New("token subject is required")
	}

	now := m.config.Now()
	ttl := m.config.AccessTTL
	if typ == TypeRefresh {
		ttl = m.config.RefreshTTL
	}

	claims := &Claims{
		Email: sub.Email,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sub.ID,
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if typ == TypeAccess {
		claims.Role = sub.Role
		claims.Permissions = append([]string(nil), sub.Permissions...)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretFor(typ))
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, claims, nil
}

func (m *Manager) verify(tokenStr string, typ TokenType) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.secretFor(typ), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("%w: expected %s token", ErrTokenInvalid, typ)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if typ == TypeRefresh && len(claims.Permissions) > 0 {
		return nil, fmt.Errorf("%w: refresh token carries permissions", ErrTokenInvalid)
	}

	return claims, nil
}

func (m *Manager) secretFor(typ TokenType) []byte {
	if typ == TypeRefresh {
		return m.config.RefreshSecret
	}
	return m.config.AccessSecret
}
