package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"chatbook/internal/config"

	"github.com/go-chi/chi/v5"
)

const (
	apiKeyHeaderDefault = "x-api-key"
	clientKeyUnknown    = "unknown"

	permWriteBookings = "write:bookings"
	permReadBookings  = "read:bookings"
	permReadServices  = "read:services"
	permDrafts        = "write:drafts"
)

var (
	errMissingKey       = errors.New("missing api key header")
	errInvalidKey       = errors.New("invalid api key")
	errPermissionDenied = errors.New("permission denied")
	errBotDenied        = errors.New("api key is not allowed for this bot")
	errRateLimited      = errors.New("rate limit exceeded")
)

type clientCtxKey struct{}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg     *config.APIConfig
	clients map[string]config.APIClientKey
	limiter *rateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m, limiter: newRateLimiter(cfg)}
}

// Authenticate resolves the caller's key and applies the per-key bucket.
func (a *HTTPAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Auth.Enabled {
			client, err := a.checkAuth(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), clientCtxKey{}, client))
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// BotAccess rejects keys restricted to other bots. Must run under a
// {botID} route.
func (a *HTTPAuth) BotAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, ok := clientFromContext(r.Context())
		if ok && !client.allowsBot(chi.URLParam(r, "botID")) {
			writeError(w, http.StatusForbidden, "forbidden", errBotDenied.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Require checks the caller holds perm. Keys without permissions are
// allowed everything.
func (a *HTTPAuth) Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client, ok := clientFromContext(r.Context())
			if ok && !client.has(perm) {
				writeError(w, http.StatusForbidden, "forbidden", errPermissionDenied.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *HTTPAuth) header() string {
	h := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if h == "" {
		return apiKeyHeaderDefault
	}
	return h
}

func (a *HTTPAuth) checkAuth(r *http.Request) (apiClient, error) {
	apiKey := strings.TrimSpace(r.Header.Get(a.header()))
	if apiKey == "" {
		return apiClient{}, errMissingKey
	}

	for key, client := range a.clients {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return apiClient(client), nil
		}
	}
	return apiClient{}, errInvalidKey
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.header())); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

type apiClient config.APIClientKey

func (c apiClient) has(perm string) bool {
	if len(c.Permissions) == 0 {
		return true
	}
	for _, p := range c.Permissions {
		if strings.TrimSpace(p) == perm {
			return true
		}
	}
	return false
}

func (c apiClient) allowsBot(botID string) bool {
	if len(c.Bots) == 0 {
		return true
	}
	for _, b := range c.Bots {
		if b == botID {
			return true
		}
	}
	return false
}

func clientFromContext(ctx context.Context) (apiClient, bool) {
	c, ok := ctx.Value(clientCtxKey{}).(apiClient)
	return c, ok
}
