// Package jwt mints and inspects the session tokens handed out by the
// authentication service.
//
// The client never needs to trust a token it holds, but it does need the
// token's subject and expiry to hydrate a session and to schedule renewal.
// [Manager.Inspect] reads those claims without a key; [Manager.Parse] performs
// full verification when the host is configured with the service's public key.
// [Manager.Issue] exists for development servers and tests.
package jwt
