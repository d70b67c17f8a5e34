// Package auth carries delegated bearer credentials through a request and
// verifies them.
//
// The Gate extracts the bearer token of an inbound request and binds it to
// the request context with WithToken. The dispatcher built by NewDispatcher
// is one shared *http.Client whose ForwardingTransport reads that token back
// at send time, so concurrent requests never see each other's credential.
//
// On the receiving side, Verifier checks a token's signature, audience,
// issuer and expiry against keys cached by KeySet, and RequireIdentity turns
// that into HTTP middleware. Verification failures are classified by Outcome
// for logs and metrics but are never disclosed to the caller.
package auth
