package toolserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jonwraymond/toolgate/auth"
)

var whoamiTool = mcp.NewTool("whoami",
	mcp.WithDescription("Report the verified identity of the caller."),
)

var checkScopeTool = mcp.NewTool("check_scope",
	mcp.WithDescription("Report whether the caller holds a scope."),
	mcp.WithString("scope", mcp.Required(), mcp.Description("Scope to check, e.g. MCP.Access")),
)

// Whoami is the structured result of the whoami tool.
type Whoami struct {
	Authenticated bool     `json:"authenticated"`
	ClientID      string   `json:"client_id,omitempty"`
	Subject       string   `json:"subject,omitempty"`
	TenantID      string   `json:"tenant_id,omitempty"`
	Scopes        []string `json:"scopes,omitempty"`
}

func whoami(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := auth.IdentityFromContext(ctx)
	if id == nil {
		return mcp.NewToolResultStructured(Whoami{}, "anonymous"), nil
	}
	res := Whoami{
		Authenticated: true,
		ClientID:      id.ClientID,
		Subject:       id.Subject,
		TenantID:      id.TenantID,
		Scopes:        id.Scopes.List(),
	}
	return mcp.NewToolResultStructured(res, id.ClientID), nil
}

func checkScope(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope, err := req.RequireString("scope")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if auth.IdentityFromContext(ctx).HasScope(scope) {
		return mcp.NewToolResultText("granted"), nil
	}
	return mcp.NewToolResultText("denied"), nil
}
