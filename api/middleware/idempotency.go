package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/chama-backend/api/responses"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/chama-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	membershipTTL = 24 * time.Hour
	settlementTTL = 7 * 24 * time.Hour

	// inFlightTTL bounds how long a crashed request keeps its key reserved.
	inFlightTTL    = 2 * time.Minute
	inFlightMarker = "in-flight"

	maxIdempotentBody = 1 << 20
)

// IdempotentStore is the redis surface the middleware needs.
type IdempotentStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type idempotencyRule struct {
	method   string
	segments []string
	ttl      time.Duration
}

// rule builds a path template where "*" matches exactly one segment.
func rule(method, template string, ttl time.Duration) idempotencyRule {
	return idempotencyRule{method: method, segments: splitPath(template), ttl: ttl}
}

var idempotencyRules = []idempotencyRule{
	rule(http.MethodPost, "/api/v1/groups", membershipTTL),
	rule(http.MethodPost, "/api/v1/groups/*/join", membershipTTL),
	rule(http.MethodPost, "/api/v1/groups/*/activities", membershipTTL),
	rule(http.MethodPost, "/api/v1/activities/*/enroll", membershipTTL),
	rule(http.MethodPost, "/api/v1/activities/*/rotation", membershipTTL),
	rule(http.MethodPost, "/api/v1/activities/*/rotation/swap", membershipTTL),
	rule(http.MethodPost, "/api/v1/activities/*/fines", membershipTTL),
	rule(http.MethodPost, "/api/v1/loans/*/reject", membershipTTL),

	rule(http.MethodPost, "/api/v1/wallet/deposits", settlementTTL),
	rule(http.MethodPost, "/api/v1/wallet/withdrawals", settlementTTL),
	rule(http.MethodPost, "/api/v1/wallet/transfers", settlementTTL),
	rule(http.MethodPost, "/api/v1/groups/*/registration-fee", settlementTTL),
	rule(http.MethodPost, "/api/v1/activities/*/contributions", settlementTTL),
	rule(http.MethodPost, "/api/v1/activities/*/rotation/disburse", settlementTTL),
	rule(http.MethodPost, "/api/v1/activities/*/loans", settlementTTL),
	rule(http.MethodPost, "/api/v1/activities/*/dividends/distribute", settlementTTL),
	rule(http.MethodPost, "/api/v1/loans/*/approve", settlementTTL),
	rule(http.MethodPost, "/api/v1/loans/*/repayments", settlementTTL),
	rule(http.MethodPost, "/api/v1/fines/*/pay", settlementTTL),
}

type idempotencyRecord struct {
	Status      int               `json:"status"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// state-changing routes. A key is reserved while its first request runs, and
// released again when that request ends in a 5xx so the client may retry.
func Idempotency(store IdempotentStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody+1))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			if len(body) > maxIdempotentBody {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := hashBody(body)
			key := store.IdempotencyKey(buildScope(r), clientKey)

			claimed, err := store.SetNX(ctx, key, inFlightMarker, inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !claimed {
				replayStored(ctx, store, key, requestHash, w, logg)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := defaultStatus(rec.status)
			if status >= http.StatusInternalServerError {
				if delErr := store.Del(ctx, key); delErr != nil {
					logError(ctx, logg, "release idempotency key", delErr)
				}
				return
			}

			record := idempotencyRecord{
				Status:      status,
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
				RequestHash: requestHash,
			}
			if ct := rec.Header().Get("Content-Type"); ct != "" {
				record.Headers = map[string]string{"Content-Type": ct}
			}
			payload, err := json.Marshal(record)
			if err != nil {
				logError(ctx, logg, "marshal idempotency record", err)
				return
			}
			if err := store.Set(ctx, key, string(payload), ttl); err != nil {
				logError(ctx, logg, "persist idempotency record", err)
			}
		})
	}
}

func replayStored(ctx context.Context, store IdempotentStore, key, requestHash string, w http.ResponseWriter, logg *logger.Logger) {
	stored, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil), err == nil && stored == inFlightMarker:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this Idempotency-Key is still being processed"))
		return
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != requestHash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}

	if ct := record.Headers["Content-Type"]; ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func buildScope(r *http.Request) string {
	member := ""
	if id := MemberIDFromContext(r.Context()); id != uuid.Nil {
		member = id.String()
	}
	return strings.Join([]string{member, r.Method, r.URL.Path}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func defaultStatus(value int) int {
	if value == 0 {
		return http.StatusOK
	}
	return value
}

// routeTTL matches against the request path so the rule holds before a
// mounted subrouter has resolved its pattern.
func routeTTL(method, path string) (time.Duration, bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return 0, false
	}
	for _, rl := range idempotencyRules {
		if rl.method == method && rl.matches(segments) {
			return rl.ttl, true
		}
	}
	return 0, false
}

func (rl idempotencyRule) matches(segments []string) bool {
	if len(segments) != len(rl.segments) {
		return false
	}
	for i, want := range rl.segments {
		if want != "*" && want != segments[i] {
			return false
		}
	}
	return true
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
