package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-escrow/pkg/config"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "escrow-secret", Issuer: "packfinderz", ExpirationMinutes: 30}

func verifier(t *testing.T, cfg config.JWTConfig) *Verifier {
	t.Helper()
	v, err := NewVerifier(cfg)
	require.NoError(t, err)
	return v
}

func TestMintThenVerify(t *testing.T) {
	sellerID := uuid.New()
	now := time.Now().UTC()

	token, err := Mint(testJWT, now, Actor{ID: sellerID, Role: enums.ActorRoleSeller, Email: " a@sellers.test "})
	require.NoError(t, err)

	claims, err := verifier(t, testJWT).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Actor{ID: sellerID, Role: enums.ActorRoleSeller, Email: "a@sellers.test"}, claims.Actor())
	assert.Equal(t, sellerID.String(), claims.Subject)
	assert.Equal(t, "packfinderz", claims.Issuer)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
	assert.NotEmpty(t, claims.ID)
}

func TestVerifyRejects(t *testing.T) {
	otherSecret := testJWT
	otherSecret.Secret = "not-the-escrow-secret"
	forged, err := Mint(otherSecret, time.Now(), Actor{ID: uuid.New(), Role: enums.ActorRoleBuyer})
	require.NoError(t, err)
	expired, err := Mint(testJWT, time.Now().Add(-time.Hour), Actor{ID: uuid.New(), Role: enums.ActorRoleAdmin})
	require.NoError(t, err)
	otherIssuer := testJWT
	otherIssuer.Issuer = "someone-else"
	foreign, err := Mint(otherIssuer, time.Now(), Actor{ID: uuid.New(), Role: enums.ActorRoleBuyer})
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ActorID:          uuid.New(),
		Role:             enums.ActorRoleBuyer,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: testJWT.Issuer},
	}).SignedString([]byte(testJWT.Secret))
	require.NoError(t, err)
	systemRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ActorID:          uuid.New(),
		Role:             enums.ActorRoleSystem,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: testJWT.Issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testJWT.Secret))
	require.NoError(t, err)

	v := verifier(t, testJWT)
	cases := map[string]struct {
		token string
		is    error
	}{
		"forged":       {token: forged, is: jwt.ErrTokenSignatureInvalid},
		"expired":      {token: expired, is: jwt.ErrTokenExpired},
		"issuer":       {token: foreign, is: jwt.ErrTokenInvalidIssuer},
		"no expiry":    {token: noExpiry, is: jwt.ErrTokenRequiredClaimMissing},
		"system actor": {token: systemRole, is: ErrInvalidActor},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(tc.token)
			assert.ErrorIs(t, err, tc.is)
		})
	}
}

func TestMintRejectsBadInput(t *testing.T) {
	_, err := Mint(testJWT, time.Now(), Actor{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrInvalidActor)
	_, err = Mint(testJWT, time.Now(), Actor{ID: uuid.New(), Role: enums.ActorRoleSystem})
	assert.ErrorIs(t, err, ErrInvalidActor)
	_, err = Mint(testJWT, time.Now(), Actor{Role: enums.ActorRoleBuyer})
	assert.ErrorIs(t, err, ErrInvalidActor)

	noTTL := testJWT
	noTTL.ExpirationMinutes = 0
	_, err = Mint(noTTL, time.Now(), Actor{ID: uuid.New(), Role: enums.ActorRoleBuyer})
	assert.Error(t, err)
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier(config.JWTConfig{Issuer: "packfinderz"})
	assert.Error(t, err)
}
