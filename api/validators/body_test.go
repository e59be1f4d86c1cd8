package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
)

type depositBody struct {
	Phone  string `json:"phone" validate:"required,msisdn"`
	Amount string `json:"amount" validate:"required,money"`
	Date   string `json:"date" validate:"omitempty,ymd"`
}

func decode(t *testing.T, body string) (*depositBody, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/deposits", strings.NewReader(body))
	var dest depositBody
	err := DecodeJSONBody(req, &dest)
	return &dest, err
}

func fieldDetails(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, _ := typed.Details().(map[string]string)
	return details
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	got, err := decode(t, `{"phone":"0712345678","amount":"150.50","date":"2026-01-06"}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Amount != "150.50" {
		t.Fatalf("unexpected amount %q", got.Amount)
	}
}

func TestDecodeJSONBodyReportsDomainTags(t *testing.T) {
	_, err := decode(t, `{"phone":"12345","amount":"10.001","date":"06/01/2026"}`)
	details := fieldDetails(t, err)
	for _, field := range []string{"phone", "amount", "date"} {
		if details[field] == "" {
			t.Fatalf("expected a message for %s, got %v", field, details)
		}
	}
	if details["amount"] != "must be a positive amount with at most two decimal places" {
		t.Fatalf("unexpected amount message %q", details["amount"])
	}
}

func TestDecodeJSONBodyRejectsMalformedBodies(t *testing.T) {
	cases := map[string]string{
		"empty":    ``,
		"unknown":  `{"phone":"0712345678","amount":"1","extra":true}`,
		"trailing": `{"phone":"0712345678","amount":"1"}{"amount":"2"}`,
		"large":    `{"phone":"0712345678","amount":"1","date":"` + strings.Repeat("x", maxBodyBytes) + `"}`,
	}
	for name, body := range cases {
		if _, err := decode(t, body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestParseQueryIntRejectsRepeats(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/transfers?limit=5&limit=50", nil)
	if _, err := ParseQueryInt(req, "limit", 25, 1, 100); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/me/transfers", nil)
	if got, err := ParseQueryInt(req, "limit", 25, 1, 100); err != nil || got != 25 {
		t.Fatalf("expected default, got %d %v", got, err)
	}
}

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"  Umoja   Chama \n", 0, "Umoja Chama"},
		{"late\tfine\x00 march", 0, "late fine march"},
		{"Wanjikũ Kamau", 7, "Wanjikũ"},
		{"ab  cd", 3, "ab"},
	}
	for _, tc := range cases {
		if got := SanitizeString(tc.in, tc.max); got != tc.want {
			t.Fatalf("SanitizeString(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
