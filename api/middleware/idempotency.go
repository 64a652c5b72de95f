package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/packfinderz-escrow/api/responses"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
	pkgredis "github.com/angelmondragon/packfinderz-escrow/pkg/redis"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// a claim outlives any handler; a crashed request frees its key after this
	inFlightTTL = 2 * time.Minute
)

// idempotentRoutes lists the writes that require an Idempotency-Key. Paths
// use "*" for one path segment. Routes that move money keep their records
// for a week.
var idempotentRoutes = []struct {
	method string
	path   string
	ttl    time.Duration
}{
	{http.MethodPost, "/api/v1/cases", defaultIdempotencyTTL},
	{http.MethodPost, "/api/v1/cases/*/messages", defaultIdempotencyTTL},
	{http.MethodPost, "/api/v1/cases/*/escalate", defaultIdempotencyTTL},
	{http.MethodPost, "/api/v1/seller/cases/*/review", defaultIdempotencyTTL},
	{http.MethodPost, "/api/v1/seller/sub-orders/*/transition", defaultIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/sub-orders/*/transition", defaultIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/cases/*/escalate", defaultIdempotencyTTL},
	{http.MethodPut, "/api/admin/v1/payouts/sellers/*/account", defaultIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/outbox/dead-letters/*/requeue", defaultIdempotencyTTL},

	{http.MethodPost, "/api/v1/checkout/confirm", criticalIdempotencyTTL},
	{http.MethodPost, "/api/v1/seller/cases/*/resolve", criticalIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/cases/*/resolve", criticalIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/payouts/run", criticalIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/payouts/sellers/*/run", criticalIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/settlements/invoices", criticalIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/invoices/*/mark-paid", criticalIdempotencyTTL},
}

// storedResponse is what a key maps to. A record without a status is a claim
// held by a request still running.
type storedResponse struct {
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
	RequestHash string `json:"request_hash"`
}

func (s storedResponse) pending() bool { return s.Status == 0 }

// Idempotency makes the writes in idempotentRoutes safe to retry. The first
// request with a key claims it; a concurrent duplicate gets a conflict; a
// later duplicate with the same body gets the stored response replayed.
// Server errors release the key so the client can retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyKeyHeader+" header required"))
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := requestHash(body)
			key := store.IdempotencyKey(idempotencyScope(r), clientKey)
			claim, _ := json.Marshal(storedResponse{RequestHash: hash})

			claimed, err := store.SetNX(ctx, key, string(claim), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replayOrReject(w, r, store, key, hash, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// the key is released either way: failures become retryable,
			// successes are rewritten as a full record
			if err := store.Del(ctx, key); err != nil {
				logg.Error(ctx, "release idempotency claim", err)
				return
			}
			if capture.statusCode() >= http.StatusInternalServerError {
				return
			}
			record, _ := json.Marshal(storedResponse{
				Status:      capture.statusCode(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				RequestHash: hash,
			})
			if _, err := store.SetNX(ctx, key, string(record), ttl); err != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func replayOrReject(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, key, hash string, logg *logger.Logger) {
	ctx := r.Context()
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// the first request failed and released the key in between
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key just finished, retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case stored.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case stored.pending():
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
	default:
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		w.Header().Set(ReplayedHeader, "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
	}
}

// idempotencyScope keeps key spaces apart per actor and endpoint.
func idempotencyScope(r *http.Request) string {
	return strings.Join([]string{ActorIDFromContext(r.Context()), RoleFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func requestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// routePattern prefers the matched chi pattern. Mounted with Use, the
// middleware runs before the subrouter matches, so it falls back to the path.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" && !strings.HasSuffix(p, "*") {
			return p
		}
	}
	return r.URL.Path
}

func routeTTL(method, path string) (time.Duration, bool) {
	for _, route := range idempotentRoutes {
		if route.method == method && pathMatches(route.path, path) {
			return route.ttl, true
		}
	}
	return 0, false
}

// pathMatches compares segment by segment; "*" in the template matches any
// single segment, including a chi "{param}".
func pathMatches(template, path string) bool {
	want := strings.Split(strings.Trim(template, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != "*" && want[i] != got[i] {
			return false
		}
	}
	return true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
