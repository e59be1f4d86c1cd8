package gateway

import (
	"strings"

	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
)

// NormalizePhone returns the 12-digit 2547XXXXXXXX form of a Kenyan mobile number.
// Local 07XXXXXXXX numbers, bare 7XXXXXXXX numbers and +254 prefixes are accepted.
func NormalizePhone(raw string) (string, error) {
	cleaned := strings.NewReplacer(" ", "", "-", "", "+", "").Replace(strings.TrimSpace(raw))
	switch {
	case len(cleaned) == 10 && strings.HasPrefix(cleaned, "0"):
		cleaned = "254" + cleaned[1:]
	case len(cleaned) == 9 && (cleaned[0] == '7' || cleaned[0] == '1'):
		cleaned = "254" + cleaned
	}
	if len(cleaned) != 12 || !strings.HasPrefix(cleaned, "254") || !isDigits(cleaned) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "phone number must be a Kenyan mobile number").
			WithDetails(map[string]any{"phone": raw})
	}
	return cleaned, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
