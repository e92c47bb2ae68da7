package http

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/modestbitboard/breadbox"
	"github.com/modestbitboard/breadbox/ratelimit"
)

// ParamSignURL is the query flag that requests a signed URL for a path
// instead of the resource itself.
const ParamSignURL = "signUrl"

// GateConfig controls the security gate. Permission groups must be
// validated (breadbox.ParseGroup) before they get here; the gate trusts
// them blindly.
type GateConfig struct {
	// ProtectedPrefixes lists path prefixes the gate guards. Requests
	// outside them bypass everything except rate limiting.
	ProtectedPrefixes []string

	Permissions breadbox.ActionGroups

	// ReadOnly denies all write and delete actions before any credential
	// check.
	ReadOnly bool

	// Credential sources, tried in order. An empty name disables that
	// source.
	AuthHeader string
	AuthCookie string
	AuthQuery  string

	// RateLimitExempt lists route patterns that bypass the rate limiter.
	// A "{segment}" in a pattern matches any single path segment.
	RateLimitExempt []string
}

// Gate resolves every request to a protected path to exactly one outcome
// before any handler runs.
type Gate struct {
	cfg       GateConfig
	directory breadbox.UserDirectory
	issuer    *breadbox.GrantIssuer
	limiter   *ratelimit.Limiter
}

// NewGate assembles a gate. A nil issuer disables signed URLs; a nil
// limiter disables rate limiting.
func NewGate(cfg GateConfig, directory breadbox.UserDirectory, issuer *breadbox.GrantIssuer, limiter *ratelimit.Limiter) *Gate {
	return &Gate{
		cfg:       cfg,
		directory: directory,
		issuer:    issuer,
		limiter:   limiter,
	}
}

// MintResponse is the body returned for a successful signed-URL mint.
type MintResponse struct {
	URL     string `json:"url"`
	Issued  string `json:"issued"`
	Expires string `json:"expires"`
}

// Middleware wraps a handler with the gate's decision pipeline:
// rate limit, then for protected paths mint flag, signature parameter,
// read-only check, and credential resolution, in that order.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if g.limiter != nil && !g.exempt(r.URL.Path) {
			if !g.limiter.Allow(ip) {
				Respond(w, "rate_limited", nil)
				return
			}
		}

		if !g.protected(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		query := r.URL.Query()

		if query.Has(ParamSignURL) {
			g.handleMint(w, r, ip)
			return
		}

		// A stray signature parameter is only meaningful when signed URLs
		// are enabled; otherwise the request is judged on its credential.
		if g.issuer != nil && query.Has(breadbox.ParamSignature) {
			g.handleSigned(w, r, next, ip)
			return
		}

		g.handleCredential(w, r, next, ip)
	})
}

// handleMint authenticates and authorizes as a read, then mints a grant
// for the request path. This path never reaches the underlying handler.
func (g *Gate) handleMint(w http.ResponseWriter, r *http.Request, ip string) {
	if g.issuer == nil {
		Respond(w, "disabled_feature", nil)
		return
	}
	if r.Method != http.MethodGet {
		Respond(w, "signed_url_method", nil)
		return
	}

	username := ""
	group := g.cfg.Permissions.For(breadbox.ActionRead)

	switch group.Resolve() {
	case breadbox.DecisionDeny:
		Respond(w, "disabled_feature", nil)
		return

	case breadbox.DecisionAuthenticate:
		apiKey, ok := g.credential(r)
		if !ok {
			Respond(w, "no_api_key", nil)
			return
		}
		identity, found, err := g.directory.Lookup(r.Context(), apiKey)
		if err != nil {
			slog.Error("user directory lookup failed", "error", err)
			Respond(w, "internal_error", nil)
			return
		}
		if !found {
			Respond(w, "invalid_api_key", nil)
			return
		}
		if !group.Admits(identity.AuthLevel) {
			Respond(w, "insufficient_permissions", nil)
			return
		}
		username = identity.Username

	case breadbox.DecisionAllow:
	}

	grant := g.issuer.Mint(r.URL.Path, ip)
	g.logAuthorized(r, username, ip)

	WriteJSON(w, http.StatusOK, MintResponse{
		URL:     grant.URL(),
		Issued:  grant.Issued.UTC().Format(time.RFC3339),
		Expires: grant.Expires.UTC().Format(time.RFC3339),
	})
}

// handleSigned verifies a grant carried in the query and forwards on
// success.
func (g *Gate) handleSigned(w http.ResponseWriter, r *http.Request, next http.Handler, ip string) {
	if r.Method != http.MethodGet {
		Respond(w, "signed_url_method", nil)
		return
	}

	if err := g.issuer.Verify(r.URL.Path, ip, r.URL.Query()); err != nil {
		switch {
		case errors.Is(err, breadbox.ErrExpiresTooLate):
			Respond(w, "expires_too_late", nil)
		case errors.Is(err, breadbox.ErrGrantExpired):
			Respond(w, "expired_url", nil)
		default:
			Respond(w, "url_signature_mismatch", nil)
		}
		return
	}

	g.logAuthorized(r, "signed-url", ip)
	next.ServeHTTP(w, r)
}

// handleCredential resolves the configured permission group for the
// request's action against a credential, if one is required.
func (g *Gate) handleCredential(w http.ResponseWriter, r *http.Request, next http.Handler, ip string) {
	action := breadbox.ActionForMethod(r.Method)

	if g.cfg.ReadOnly && (action == breadbox.ActionWrite || action == breadbox.ActionDelete) {
		Respond(w, "read_only", nil)
		return
	}

	group := g.cfg.Permissions.For(action)

	switch group.Resolve() {
	case breadbox.DecisionAllow:
		next.ServeHTTP(w, r)
		return

	case breadbox.DecisionDeny:
		Respond(w, "disabled_feature", nil)
		return
	}

	apiKey, ok := g.credential(r)
	if !ok {
		Respond(w, "auth_required", nil)
		return
	}

	identity, found, err := g.directory.Lookup(r.Context(), apiKey)
	if err != nil {
		slog.Error("user directory lookup failed", "error", err)
		Respond(w, "internal_error", nil)
		return
	}
	if !found {
		Respond(w, "invalid_api_key", nil)
		return
	}

	if !group.Admits(identity.AuthLevel) {
		Respond(w, "insufficient_permissions", nil)
		return
	}

	g.logAuthorized(r, identity.Username, ip)
	next.ServeHTTP(w, r)
}

// credential extracts an API key: header, then cookie, then the
// deprecated query parameter.
func (g *Gate) credential(r *http.Request) (string, bool) {
	if g.cfg.AuthHeader != "" {
		if v := r.Header.Get(g.cfg.AuthHeader); v != "" {
			return v, true
		}
	}
	if g.cfg.AuthCookie != "" {
		if c, err := r.Cookie(g.cfg.AuthCookie); err == nil && c.Value != "" {
			return c.Value, true
		}
	}
	if g.cfg.AuthQuery != "" {
		if v := r.URL.Query().Get(g.cfg.AuthQuery); v != "" {
			return v, true
		}
	}
	return "", false
}

func (g *Gate) protected(path string) bool {
	for _, prefix := range g.cfg.ProtectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (g *Gate) exempt(path string) bool {
	for _, pattern := range g.cfg.RateLimitExempt {
		if matchRoute(pattern, path) {
			return true
		}
	}
	return false
}

// matchRoute matches a path against a pattern where "{name}" segments
// match any single path segment.
func matchRoute(pattern, path string) bool {
	pat := strings.Split(strings.Trim(pattern, "/"), "/")
	seg := strings.Split(strings.Trim(path, "/"), "/")
	if len(pat) != len(seg) {
		return false
	}
	for i := range pat {
		if strings.HasPrefix(pat[i], "{") && strings.HasSuffix(pat[i], "}") {
			continue
		}
		if pat[i] != seg[i] {
			return false
		}
	}
	return true
}

// logAuthorized records a request that passed the gate, with the auth
// query parameter stripped from the logged URL.
func (g *Gate) logAuthorized(r *http.Request, username, ip string) {
	slog.Info("request authorized",
		"user", username,
		"client", ip,
		"method", r.Method,
		"url", g.loggableURL(r),
	)
}

func (g *Gate) loggableURL(r *http.Request) string {
	if g.cfg.AuthQuery == "" {
		return r.URL.String()
	}
	u := *r.URL
	q := u.Query()
	q.Del(g.cfg.AuthQuery)
	u.RawQuery = q.Encode()
	return u.String()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
