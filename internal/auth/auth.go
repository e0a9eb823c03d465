// Package auth authenticates registry operators.
//
// An operator exchanges the shared operator secret (stored as a bcrypt hash)
// for a short-lived RS256 JWT, then presents it as a Bearer token on the
// approval and role management routes. When no secret hash is configured the
// registry runs in open mode and those routes are unauthenticated.
package auth
