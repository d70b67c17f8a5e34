package toolclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/oauth2"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/session"
)

// Sentinel errors.
var (
	ErrNoSessionStore = errors.New("toolclient: no session store configured")
	ErrToolCall       = errors.New("toolclient: tool call failed")
)

// Factory builds clients for the tool server at URL.
type Factory struct {
	// URL is the MCP endpoint, e.g. http://localhost:8001/mcp.
	URL string

	// HTTPClient is the shared dispatcher. Default: http.DefaultClient.
	HTTPClient *http.Client

	// Sessions backs ForSession.
	Sessions *session.Store

	ClientName    string
	ClientVersion string
}

// Shared returns a client that sends the token bound to each call's
// context, if any.
func (f *Factory) Shared() *Client {
	return f.newClient(f.httpClient())
}

// ForSession returns a client that sends the token stored for sessionID on
// every request, whatever token the call's context carries. Sessions are
// looked up with ctx, so they are scoped to the caller that stored them. An
// unknown session yields session.ErrUnknownSession.
func (f *Factory) ForSession(ctx context.Context, sessionID string) (*Client, error) {
	if f.Sessions == nil {
		return nil, ErrNoSessionStore
	}
	token, err := f.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	shared := f.httpClient()
	hc := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   detachToken{base: shared.Transport},
		},
		Timeout: shared.Timeout,
	}
	return f.newClient(hc), nil
}

// detachToken sends requests without the bearer token bound to their
// context, so the dispatcher's forwarding layer keeps the header set above it.
type detachToken struct {
	base http.RoundTripper
}

func (d detachToken) RoundTrip(req *http.Request) (*http.Response, error) {
	base := d.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req.WithContext(auth.WithoutToken(req.Context())))
}

func (f *Factory) httpClient() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return http.DefaultClient
}

func (f *Factory) newClient(hc *http.Client) *Client {
	name := f.ClientName
	if name == "" {
		name = "toolgate"
	}
	return &Client{
		url:        f.URL,
		httpClient: hc,
		info:       mcp.Implementation{Name: name, Version: f.ClientVersion},
	}
}

// Client issues MCP requests. It holds no connection between calls and is
// safe for concurrent use.
type Client struct {
	url        string
	httpClient *http.Client
	info       mcp.Implementation
}

// ListTools returns the tools advertised by the server.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var tools []mcp.Tool
	err := c.do(ctx, func(mc *client.Client) error {
		res, err := mc.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return err
		}
		tools = res.Tools
		return nil
	})
	return tools, err
}

// CallTool invokes the tool name with args. A result flagged IsError is
// returned as is; only transport and protocol failures are errors.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	var result *mcp.CallToolResult
	err := c.do(ctx, func(mc *client.Client) error {
		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args
		res, err := mc.CallTool(ctx, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

// do runs fn inside a fresh, initialized MCP session bound to ctx.
func (c *Client) do(ctx context.Context, fn func(*client.Client) error) error {
	mc, err := client.NewStreamableHttpClient(c.url, transport.WithHTTPBasicClient(c.httpClient))
	if err != nil {
		return fmt.Errorf("%w: create client: %v", ErrToolCall, err)
	}
	defer func() { _ = mc.Close() }()

	if err := mc.Start(ctx); err != nil {
		return fmt.Errorf("%w: start: %w", ErrToolCall, err)
	}

	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = c.info
	if _, err := mc.Initialize(ctx, init); err != nil {
		return fmt.Errorf("%w: initialize: %w", ErrToolCall, err)
	}

	if err := fn(mc); err != nil {
		return fmt.Errorf("%w: %w", ErrToolCall, err)
	}
	return nil
}
