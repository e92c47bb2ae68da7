package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/modestbitboard/breadbox"
	bbhttp "github.com/modestbitboard/breadbox/http"
	"github.com/modestbitboard/breadbox/ratelimit"
	"github.com/modestbitboard/breadbox/userdb"
)

func testDirectory() breadbox.UserDirectory {
	return userdb.NewMapDirectory(map[string]breadbox.Identity{
		"admin-key":       {Username: "akito", AuthLevel: 3},
		"user-key":        {Username: "dana", AuthLevel: 1},
		"contributor-key": {Username: "kai", AuthLevel: 2},
	})
}

func baseGateConfig() bbhttp.GateConfig {
	return bbhttp.GateConfig{
		ProtectedPrefixes: []string{"/archive"},
		Permissions: breadbox.ActionGroups{
			Read:   breadbox.GroupEveryone,
			Write:  breadbox.GroupContributors,
			Delete: breadbox.GroupAdmin,
			Other:  breadbox.GroupNobody,
		},
		AuthHeader: "X-API-Key",
		AuthCookie: "api_key",
		AuthQuery:  "api_key",
	}
}

func newTestIssuer(t *testing.T) *breadbox.GrantIssuer {
	t.Helper()
	signer, err := breadbox.NewSigner([]byte("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"))
	assert.NoError(t, err)
	return breadbox.NewGrantIssuer(signer, time.Hour)
}

// serveGate runs one request through the gate and reports whether it
// reached the wrapped handler.
func serveGate(gate *bbhttp.Gate, r *http.Request) (*httptest.ResponseRecorder, bool) {
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	gate.Middleware(next).ServeHTTP(rec, r)
	return rec, reached
}

func TestGate_UnprotectedPathBypasses(t *testing.T) {
	gate := bbhttp.NewGate(baseGateConfig(), testDirectory(), nil, nil)

	r := httptest.NewRequest(http.MethodDelete, "/static/logo.png", nil)
	rec, reached := serveGate(gate, r)

	assert.True(t, reached)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGate_ReadEveryoneAllowsAnonymous(t *testing.T) {
	gate := bbhttp.NewGate(baseGateConfig(), testDirectory(), nil, nil)

	r := httptest.NewRequest(http.MethodGet, "/archive/games/", nil)
	_, reached := serveGate(gate, r)

	assert.True(t, reached)
}

func TestGate_CredentialResolution(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		setup    func(r *http.Request)
		wantCode string
	}{
		{
			name:     "write without credential",
			method:   http.MethodPatch,
			setup:    func(r *http.Request) {},
			wantCode: "auth_required",
		},
		{
			name:   "write with unknown key",
			method: http.MethodPatch,
			setup: func(r *http.Request) {
				r.Header.Set("X-API-Key", "bogus")
			},
			wantCode: "invalid_api_key",
		},
		{
			name:   "write below threshold",
			method: http.MethodPatch,
			setup: func(r *http.Request) {
				r.Header.Set("X-API-Key", "user-key")
			},
			wantCode: "insufficient_permissions",
		},
		{
			name:   "write at threshold",
			method: http.MethodPatch,
			setup: func(r *http.Request) {
				r.Header.Set("X-API-Key", "contributor-key")
			},
			wantCode: "",
		},
		{
			name:   "delete needs admin",
			method: http.MethodDelete,
			setup: func(r *http.Request) {
				r.Header.Set("X-API-Key", "contributor-key")
			},
			wantCode: "insufficient_permissions",
		},
		{
			name:   "delete as admin",
			method: http.MethodDelete,
			setup: func(r *http.Request) {
				r.Header.Set("X-API-Key", "admin-key")
			},
			wantCode: "",
		},
		{
			name:   "credential via cookie",
			method: http.MethodPatch,
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "api_key", Value: "contributor-key"})
			},
			wantCode: "",
		},
		{
			name:     "other action is disabled",
			method:   "PROPFIND",
			setup:    func(r *http.Request) {},
			wantCode: "disabled_feature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := bbhttp.NewGate(baseGateConfig(), testDirectory(), nil, nil)

			r := httptest.NewRequest(tt.method, "/archive/games/1", nil)
			tt.setup(r)

			rec, reached := serveGate(gate, r)
			if tt.wantCode == "" {
				assert.True(t, reached)
				assert.Equal(t, http.StatusNoContent, rec.Code)
			} else {
				assert.False(t, reached)
				assert.Equal(t, tt.wantCode, decodeResponse(t, rec).Code)
			}
		})
	}
}

func TestGate_CredentialViaQuery(t *testing.T) {
	gate := bbhttp.NewGate(baseGateConfig(), testDirectory(), nil, nil)

	r := httptest.NewRequest(http.MethodPatch, "/archive/games/1?api_key=contributor-key", nil)
	_, reached := serveGate(gate, r)

	assert.True(t, reached)
}

func TestGate_ReadOnlyBeatsCredential(t *testing.T) {
	cfg := baseGateConfig()
	cfg.ReadOnly = true
	gate := bbhttp.NewGate(cfg, testDirectory(), nil, nil)

	r := httptest.NewRequest(http.MethodPatch, "/archive/games/1", nil)
	r.Header.Set("X-API-Key", "admin-key")

	rec, reached := serveGate(gate, r)
	assert.False(t, reached)
	assert.Equal(t, "read_only", decodeResponse(t, rec).Code)

	// Reads still pass.
	r = httptest.NewRequest(http.MethodGet, "/archive/games/1", nil)
	_, reached = serveGate(gate, r)
	assert.True(t, reached)
}

func TestGate_MintAndFollowGrant(t *testing.T) {
	gate := bbhttp.NewGate(baseGateConfig(), testDirectory(), newTestIssuer(t), nil)

	r := httptest.NewRequest(http.MethodGet, "/archive/games/1/files/big.iso?signUrl", nil)
	rec, reached := serveGate(gate, r)

	assert.False(t, reached, "mint never reaches the handler")
	assert.Equal(t, http.StatusOK, rec.Code)

	var mint bbhttp.MintResponse
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&mint))
	assert.Contains(t, mint.URL, "signature=")
	assert.Contains(t, mint.URL, "expires=")
	assert.NotEmpty(t, mint.Issued)
	assert.NotEmpty(t, mint.Expires)

	// The minted URL works from the same client address.
	r = httptest.NewRequest(http.MethodGet, mint.URL, nil)
	rec, reached = serveGate(gate, r)
	assert.True(t, reached)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// But not from another one.
	r = httptest.NewRequest(http.MethodGet, mint.URL, nil)
	r.RemoteAddr = "10.9.9.9:4242"
	rec, reached = serveGate(gate, r)
	assert.False(t, reached)
	assert.Equal(t, "url_signature_mismatch", decodeResponse(t, rec).Code)

	// And not for another path.
	r = httptest.NewRequest(http.MethodGet, "/archive/games/2/files/big.iso?"+mustQuery(t, mint.URL), nil)
	rec, reached = serveGate(gate, r)
	assert.False(t, reached)
	assert.Equal(t, "url_signature_mismatch", decodeResponse(t, rec).Code)
}

func TestGate_MintRequiresCredentialWhenReadGated(t *testing.T) {
	cfg := baseGateConfig()
	cfg.Permissions.Read = breadbox.GroupUsers
	gate := bbhttp.NewGate(cfg, testDirectory(), newTestIssuer(t), nil)

	r := httptest.NewRequest(http.MethodGet, "/archive/games/1?signUrl", nil)
	rec, _ := serveGate(gate, r)
	assert.Equal(t, "no_api_key", decodeResponse(t, rec).Code)

	r = httptest.NewRequest(http.MethodGet, "/archive/games/1?signUrl", nil)
	r.Header.Set("X-API-Key", "user-key")
	rec, _ = serveGate(gate, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGate_MintDisabled(t *testing.T) {
	gate := bbhttp.NewGate(baseGateConfig(), testDirectory(), nil, nil)

	r := httptest.NewRequest(http.MethodGet, "/archive/games/1?signUrl", nil)
	rec, _ := serveGate(gate, r)
	assert.Equal(t, "disabled_feature", decodeResponse(t, rec).Code)
}

func TestGate_SignedURLMethodRestriction(t *testing.T) {
	gate := bbhttp.NewGate(baseGateConfig(), testDirectory(), newTestIssuer(t), nil)

	r := httptest.NewRequest(http.MethodPost, "/archive/games/1?signUrl", nil)
	rec, _ := serveGate(gate, r)
	assert.Equal(t, "signed_url_method", decodeResponse(t, rec).Code)

	r = httptest.NewRequest(http.MethodPut, "/archive/games/1?signature=abc&expires=123", nil)
	rec, _ = serveGate(gate, r)
	assert.Equal(t, "signed_url_method", decodeResponse(t, rec).Code)
}

func TestGate_RateLimit(t *testing.T) {
	cfg := baseGateConfig()
	limiter := ratelimit.New([]ratelimit.Rule{{Limit: 2, Window: time.Hour}})
	gate := bbhttp.NewGate(cfg, testDirectory(), nil, limiter)

	for range 2 {
		r := httptest.NewRequest(http.MethodGet, "/archive/games/", nil)
		rec, _ := serveGate(gate, r)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}

	r := httptest.NewRequest(http.MethodGet, "/archive/games/", nil)
	rec, reached := serveGate(gate, r)
	assert.False(t, reached)
	assert.Equal(t, "rate_limited", decodeResponse(t, rec).Code)

	// Another client is unaffected.
	r = httptest.NewRequest(http.MethodGet, "/archive/games/", nil)
	r.RemoteAddr = "10.0.0.2:1234"
	_, reached = serveGate(gate, r)
	assert.True(t, reached)
}

func TestGate_RateLimitExemptRoute(t *testing.T) {
	cfg := baseGateConfig()
	cfg.RateLimitExempt = []string{"/archive/games/{id}/files/{filename}"}
	limiter := ratelimit.New([]ratelimit.Rule{{Limit: 1, Window: time.Hour}})
	gate := bbhttp.NewGate(cfg, testDirectory(), nil, limiter)

	for range 5 {
		r := httptest.NewRequest(http.MethodGet, "/archive/games/1/files/big.iso", nil)
		rec, _ := serveGate(gate, r)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}

	// The exemption is route-shaped, not a blanket bypass.
	r := httptest.NewRequest(http.MethodGet, "/archive/games/", nil)
	rec, _ := serveGate(gate, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	r = httptest.NewRequest(http.MethodGet, "/archive/games/", nil)
	rec, _ = serveGate(gate, r)
	assert.Equal(t, "rate_limited", decodeResponse(t, rec).Code)
}

// mustQuery extracts the raw query of a composed URL.
func mustQuery(t *testing.T, rawURL string) string {
	t.Helper()
	_, query, found := strings.Cut(rawURL, "?")
	assert.True(t, found)
	return query
}
