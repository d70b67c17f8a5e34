// Package toolserver is the downstream MCP tool server.
//
// It serves stateless streamable HTTP at /mcp. When a verifier is
// configured every request must carry a bearer token it accepts, and tool
// handlers see the verified identity in their context. The whoami and
// check_scope tools report what the server learned from the forwarded
// credential.
package toolserver
