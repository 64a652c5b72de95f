package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-escrow/pkg/config"
)

// clockSkew tolerates small drift between the issuer and this service.
const clockSkew = 30 * time.Second

var (
	ErrInvalidActor = errors.New("token actor is invalid")
	errNoSecret     = errors.New("jwt secret is required")
)

// Verifier checks HS256 tokens from one issuer.
type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

func NewVerifier(cfg config.JWTConfig) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, errNoSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Verifier{key: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}, nil
}

// Verify parses raw and returns its claims when the signature, issuer,
// expiry and actor are all valid.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return v.key, nil })
	if err != nil {
		return nil, err
	}
	if err := claims.Actor().check(); err != nil {
		return nil, err
	}
	return claims, nil
}

// Mint signs a token for actor valid for cfg.ExpirationMinutes from now.
func Mint(cfg config.JWTConfig, now time.Time, actor Actor) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errNoSecret
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	}
	actor.Email = strings.TrimSpace(actor.Email)
	if err := actor.check(); err != nil {
		return "", err
	}

	claims := Claims{
		ActorID: actor.ID,
		Role:    actor.Role,
		Email:   actor.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   actor.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}
