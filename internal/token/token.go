package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/productmanager/internal/shared"
)

// DefaultTTL is the bearer token lifetime when none is configured.
const DefaultTTL = time.Hour

// Claims is the signed snapshot of an identity at login.
type Claims struct {
	jwt.RegisteredClaims
	IdentityID int64  `json:"uid"`
	LoginName  string `json:"login"`
	RoleID     int64  `json:"rid"`
	RoleName   string `json:"role"`
	SessionID  string `json:"sid,omitempty"`
}

// Subject is what gets embedded in a new token.
type Subject struct {
	IdentityID int64
	LoginName  string
	RoleID     int64
	RoleName   string
	SessionID  string
}

// Config configures a Manager.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	Clock  shared.Clock
}

// Manager issues and verifies HS256 bearer tokens. Verification never touches storage.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    shared.Clock
}

// NewManager constructs a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token: secret must be at least 32 bytes")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Manager{secret: cfg.Secret, ttl: cfg.TTL, issuer: cfg.Issuer, now: cfg.Clock}, nil
}

// TTL returns the token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for the subject.
func (m *Manager) Issue(sub Subject) (string, Claims, error) {
	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(sub.IdentityID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
		IdentityID: sub.IdentityID,
		LoginName:  sub.LoginName,
		RoleID:     sub.RoleID,
		RoleName:   sub.RoleName,
		SessionID:  sub.SessionID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature and expiry and returns the embedded claims.
func (m *Manager) Verify(raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, shared.ErrUnauthenticated
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, shared.ErrExpiredToken
		}
		return Claims{}, fmt.Errorf("%w: %w", shared.ErrInvalidToken, err)
	}
	if !tok.Valid || claims.IdentityID <= 0 || claims.RoleName == "" {
		return Claims{}, shared.ErrInvalidToken
	}
	if claims.Subject != strconv.FormatInt(claims.IdentityID, 10) {
		return Claims{}, fmt.Errorf("%w: subject mismatch", shared.ErrInvalidToken)
	}
	return claims, nil
}
