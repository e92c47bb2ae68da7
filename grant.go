package breadbox

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Grant query parameter names on the wire.
const (
	ParamSignature = "signature"
	ParamExpires   = "expires"
)

// Grant is a minted signed-URL capability. It is stateless: validity is
// recomputed from the signature, never stored server side.
type Grant struct {
	Path      string
	Signature string
	Expires   time.Time
	Issued    time.Time
}

// URL composes the signed URL for the grant's path.
func (g Grant) URL() string {
	q := url.Values{}
	q.Set(ParamSignature, g.Signature)
	q.Set(ParamExpires, strconv.FormatInt(g.Expires.Unix(), 10))
	return g.Path + "?" + q.Encode()
}

// Query returns the grant's wire parameters, as a verifier would see them.
func (g Grant) Query() url.Values {
	q := url.Values{}
	q.Set(ParamSignature, g.Signature)
	q.Set(ParamExpires, strconv.FormatInt(g.Expires.Unix(), 10))
	return q
}

// GrantIssuer mints and verifies signed-URL grants. A grant binds a single
// path and a single client IP, supports GET only, and cannot outlive the
// configured duration.
type GrantIssuer struct {
	signer   *Signer
	duration time.Duration
	now      func() time.Time
}

// NewGrantIssuer creates an issuer whose grants live for duration. The same
// duration bounds how far in the future a presented expiry may claim to be.
func NewGrantIssuer(signer *Signer, duration time.Duration) *GrantIssuer {
	return &GrantIssuer{
		signer:   signer,
		duration: duration,
		now:      time.Now,
	}
}

// Duration returns the configured grant lifetime.
func (i *GrantIssuer) Duration() time.Duration {
	return i.duration
}

// Mint issues a grant for the given request path and client IP.
func (i *GrantIssuer) Mint(path, ip string) Grant {
	issued := i.now()
	expires := issued.Add(i.duration)
	return Grant{
		Path:      path,
		Signature: i.signer.Generate(grantPayload(expires.Unix(), ip, path)),
		Expires:   expires,
		Issued:    issued,
	}
}

// Verify checks the signature parameters of a request against the path and
// client IP it arrived with.
//
// The expires parameter must be present and numeric; anything else is a
// signature mismatch, not a pass-through. A valid signature is still rejected
// when it claims a lifetime beyond the issuer's duration (a forged token
// cannot buy itself more time) or when the expiry has passed.
func (i *GrantIssuer) Verify(path, ip string, query url.Values) error {
	signature := query.Get(ParamSignature)
	if signature == "" {
		return ErrSignatureMismatch
	}

	rawExpires := query.Get(ParamExpires)
	if rawExpires == "" {
		return ErrSignatureMismatch
	}
	expires, err := strconv.ParseInt(rawExpires, 10, 64)
	if err != nil {
		return ErrSignatureMismatch
	}

	if !i.signer.Verify(grantPayload(expires, ip, path), signature) {
		return ErrSignatureMismatch
	}

	now := i.now()
	expiry := time.Unix(expires, 0)

	if expiry.After(now.Add(i.duration)) {
		return fmt.Errorf("%w: expires %s, now %s",
			ErrExpiresTooLate, expiry.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}

	if now.After(expiry) {
		return fmt.Errorf("%w: expired %s, now %s",
			ErrGrantExpired, expiry.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}

	return nil
}

func grantPayload(expires int64, ip, path string) map[string]string {
	return map[string]string{
		"expires": strconv.FormatInt(expires, 10),
		"ip":      ip,
		"url":     path,
	}
}
