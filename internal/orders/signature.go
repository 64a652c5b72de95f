package orders

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// HMACVerifier checks payment outcomes signed with a shared secret over
// "reference|status".
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier builds a verifier for the given secret.
func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("payment outcome secret required")
	}
	return &HMACVerifier{secret: []byte(secret)}, nil
}

// Sign returns the hex signature for an outcome.
func (v *HMACVerifier) Sign(outcome PaymentOutcome) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(outcome.Reference + "|" + string(outcome.Status)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *HMACVerifier) Verify(outcome PaymentOutcome) error {
	provided, err := hex.DecodeString(strings.TrimSpace(outcome.Signature))
	if err != nil {
		return errors.New("signature is not hex encoded")
	}
	expected, _ := hex.DecodeString(v.Sign(outcome))
	if !hmac.Equal(provided, expected) {
		return errors.New("signature mismatch")
	}
	return nil
}

// UnsignedVerifier accepts every outcome. It is only wired in dev when no
// secret is configured.
type UnsignedVerifier struct{}

func (UnsignedVerifier) Verify(PaymentOutcome) error {
	return nil
}
