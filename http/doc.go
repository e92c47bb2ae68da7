// Package http provides the HTTP surface of a breadbox server: the
// security gate middleware and per-archive route handlers.
//
// The gate runs in front of every protected path and resolves each
// request to exactly one outcome before any handler executes: rate
// limit, signed-URL mint, signed-URL verification, read-only check,
// and finally credential-based permission resolution. Handlers built
// by NewHandler expose an archive's items and branch files under a
// chi router.
//
// All denials and several success cases are rendered from a fixed
// response table (see Respond) so clients can key on a stable `code`
// field instead of parsing prose.
package http
