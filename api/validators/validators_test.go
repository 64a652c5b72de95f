package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
)

type refundLine struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

type refundBody struct {
	Amount   *decimal.Decimal `json:"amount" validate:"omitempty,money"`
	Currency string           `json:"currency" validate:"omitempty,iso4217"`
	Lines    []refundLine     `json:"lines" validate:"omitempty,dive"`
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func validationDetails(t *testing.T, err error) map[string]string {
	t.Helper()
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
	details, _ := pkgerrors.As(err).Details().(map[string]string)
	return details
}

func TestDecodeJSONBodyAcceptsValidMoney(t *testing.T) {
	var dst refundBody
	require.NoError(t, DecodeJSONBody(post(`{"amount":"12.50","currency":"USD"}`), &dst))
	assert.Equal(t, "12.5", dst.Amount.String())
}

func TestDecodeJSONBodyRejectsBadMoney(t *testing.T) {
	for _, amount := range []string{`"-1.00"`, `"1.005"`} {
		var dst refundBody
		err := DecodeJSONBody(post(`{"amount":`+amount+`}`), &dst)
		assert.Equal(t, "must be a non-negative amount with at most 2 decimals", validationDetails(t, err)["amount"], amount)
	}
}

func TestDecodeJSONBodyReportsNestedFieldPath(t *testing.T) {
	var dst refundBody
	err := DecodeJSONBody(post(`{"currency":"ZZZ","lines":[{"quantity":1},{"quantity":0}]}`), &dst)

	details := validationDetails(t, err)
	assert.Equal(t, "is required", details["lines[1].quantity"])
	assert.Equal(t, "must be an ISO 4217 currency code", details["currency"])
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"unknown field": `{"amount":"1.00","tip":"2.00"}`,
		"trailing data": `{"amount":"1.00"} {"amount":"2.00"}`,
		"empty":         ``,
		"too large":     `{"currency":"` + strings.Repeat("x", MaxBodyBytes) + `"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var dst refundBody
			err := DecodeJSONBody(post(body), &dst)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestParseQueryIntBounds(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=250", nil)
	_, err := ParseQueryInt(r, "limit", 25, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	v, err := ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, v)
}

func TestParseQueryTimeAcceptsDateAndRFC3339(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?from=2026-09-01&to=2026-09-30T23:59:59Z", nil)
	from, err := ParseQueryTime(r, "from")
	require.NoError(t, err)
	to, err := ParseQueryTime(r, "to")
	require.NoError(t, err)
	assert.True(t, from.Before(*to))

	_, err = ParseQueryTime(httptest.NewRequest(http.MethodGet, "/?from=yesterday", nil), "from")
	assert.Error(t, err)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "damaged box", SanitizeString("  damaged\x00 box\t ", 0))
	assert.Equal(t, "line one\nline two", SanitizeString("line one\nline two", 0))
	assert.Equal(t, "café", SanitizeString("café au lait", 4))
	assert.Equal(t, "", SanitizeString("   ", 10))
}
