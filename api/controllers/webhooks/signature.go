package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
)

// SignatureHeader carries "sha256=<hex hmac of the raw body>" on provider
// callbacks that are not Stripe.
const SignatureHeader = "X-PackFinderz-Signature"

// BodySigner verifies provider callbacks signed with a shared secret. An
// empty secret accepts unsigned bodies only when AllowUnsigned is set.
type BodySigner struct {
	Secret        string
	AllowUnsigned bool
}

// Sign returns the header value for body.
func (s BodySigner) Sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(s.Secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (s BodySigner) Verify(body []byte, header string) error {
	if s.Secret == "" {
		if s.AllowUnsigned {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeInternal, "webhook secret not configured")
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing")
	}
	if !hmac.Equal([]byte(header), []byte(s.Sign(body))) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch")
	}
	return nil
}
