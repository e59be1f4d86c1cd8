package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100

	cursorVersion = "v1"
)

var ErrScopeMismatch = errors.New("cursor was issued for a different filter")

// Cursor is the keyset position after the last row of a page. Rows are
// ordered by (created_at DESC, id DESC) so the pair is unique and stable.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
	// Scope binds the cursor to the filter it was issued under, e.g. a transfer kind.
	Scope string
}

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer fetches one extra row to learn whether another page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// Trim cuts a buffered result set down to the page and derives the cursor
// for the next page from the last row kept.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, *Cursor) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, nil
	}
	page := rows[:limit]
	next := key(page[limit-1])
	return page, &next
}

// EncodeCursor returns a URL-safe opaque token.
func EncodeCursor(cursor Cursor) string {
	payload := strings.Join([]string{
		cursorVersion,
		cursor.CreatedAt.UTC().Format(time.RFC3339Nano),
		cursor.ID.String(),
		cursor.Scope,
	}, "|")
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes value and checks it was issued for scope. A blank value
// yields a nil cursor.
func ParseCursor(value, scope string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(decoded), "|", 4)
	if len(parts) != 4 || parts[0] != cursorVersion {
		return nil, errors.New("invalid cursor format")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	id, err := uuid.Parse(parts[2])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}
	if parts[3] != scope {
		return nil, ErrScopeMismatch
	}
	return &Cursor{CreatedAt: createdAt, ID: id, Scope: scope}, nil
}
