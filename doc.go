// Package breadbox provides the core building blocks for an archive server:
// signed delivery URLs, permission resolution, and the supporting types the
// HTTP layer composes into a request gate.
//
// An archive is a named collection of items. Each item is a numeric directory
// holding a crumb.json metadata marker and zero or more branch directories of
// files (images, media, ...). The archive and transfer logic lives in the
// archive package; the request pipeline lives in the http package.
//
// # Key Components
//
//   - Signer: HMAC-SHA512 signatures over canonically encoded payloads
//   - GrantIssuer: time-boxed, IP- and path-bound signed URL grants
//   - Group / Action: the permission ladder and HTTP method mapping
//   - UserDirectory: capability interface for API key resolution
//
// # Example Usage
//
//	signer, err := breadbox.NewSigner(nil) // random key per process
//	if err != nil {
//	    log.Fatal(err)
//	}
//	issuer := breadbox.NewGrantIssuer(signer, 720*time.Minute)
//
//	grant := issuer.Mint("/archive/games/1/zip", "203.0.113.7")
//	err = issuer.Verify("/archive/games/1/zip", "203.0.113.7", grant.Query())
//
// See the http package for the security gate and REST surface, the archive
// package for item storage, and the userdb package for directory backends.
package breadbox
