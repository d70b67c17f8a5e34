// Package gateway is the shared backend that many users reach with their
// own bearer tokens.
//
// The inbound gate binds each request's token to its context, and tool
// calls made with that context reach the tool server carrying that token
// only. The auth endpoints let a browser client discover the identity
// provider settings and park a token under a session id owned by the
// caller's bearer token.
package gateway
