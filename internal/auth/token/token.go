package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/smallbiznis/agencydesk/internal/auth/domain"
	"github.com/smallbiznis/agencydesk/internal/clock"
	"github.com/smallbiznis/agencydesk/internal/config"
	"go.uber.org/zap"
)

const minSecretLength = 32

var ErrMissingSecret = errors.New("AUTH_JWT_SECRET must be at least 32 characters in production")

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 bearer tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clock.Clock
}

func NewIssuer(secret, issuer string, ttl time.Duration, clk clock.Clock) *Issuer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, clock: clk}
}

// NewIssuerFromConfig refuses to start production without a real secret and
// generates an ephemeral one elsewhere, which invalidates tokens on restart.
func NewIssuerFromConfig(cfg config.Config, clk clock.Clock, log *zap.Logger) (*Issuer, error) {
	secret := cfg.AuthJWTSecret
	if len(secret) < minSecretLength {
		if cfg.IsProduction() {
			return nil, ErrMissingSecret
		}
		buf := make([]byte, minSecretLength)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		secret = hex.EncodeToString(buf)
		log.Named("auth.token").Warn("AUTH_JWT_SECRET not set, using an ephemeral signing key")
	}
	return NewIssuer(secret, cfg.AuthIssuer, cfg.AuthTokenTTL, clk), nil
}

func (i *Issuer) Issue(principal *domain.Principal) (string, time.Time, error) {
	now := i.clock.Now()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		Email: principal.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse checks signature, algorithm, issuer and expiry. Every failure is
// reported as domain.ErrInvalidToken.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, domain.ErrInvalidToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

func (c *Claims) PrincipalID() (snowflake.ID, error) {
	id, err := snowflake.ParseString(c.Subject)
	if err != nil {
		return 0, domain.ErrInvalidToken
	}
	return id, nil
}
