// Package toolclient calls tools on the downstream MCP server.
//
// Factory.Shared returns a client on the single shared dispatcher, which
// forwards whatever bearer token is bound to each call's context.
// Factory.ForSession instead attaches the token stored for a session id.
// Every call opens a short MCP session with the caller's context, so the
// credential reaches each HTTP request of that session.
package toolclient
