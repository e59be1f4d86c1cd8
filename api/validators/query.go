package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
)

// ParseQueryInt reads an integer query parameter within [min, max]. A
// parameter given more than once is rejected rather than silently picking one.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	values := r.URL.Query()[key]
	if len(values) > 1 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter repeated").WithDetails(map[string]any{"field": key})
	}
	raw := ""
	if len(values) == 1 {
		raw = strings.TrimSpace(values[0])
	}
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}
