package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jonwraymond/toolgate/observe"
)

// Error codes carried in JSON error bodies.
const (
	CodeMissingToken = "missing_token"
	CodeInvalidToken = "invalid_token"
	CodeForbidden    = "forbidden"
)

// GateConfig configures a Gate.
type GateConfig struct {
	// AllowPaths are exact paths served without a credential.
	AllowPaths []string

	// AllowPrefixes are path prefixes served without a credential.
	AllowPrefixes []string

	Logger observe.Logger
}

// Gate extracts the bearer token of every inbound request and binds it to
// the request context. It does not verify tokens.
type Gate struct {
	paths    map[string]struct{}
	prefixes []string
	logger   observe.Logger
}

// NewGate creates a Gate.
func NewGate(config GateConfig) *Gate {
	g := &Gate{
		paths:    make(map[string]struct{}, len(config.AllowPaths)),
		prefixes: append([]string(nil), config.AllowPrefixes...),
		logger:   config.Logger,
	}
	for _, p := range config.AllowPaths {
		g.paths[p] = struct{}{}
	}
	if g.logger == nil {
		g.logger = observe.NopLogger()
	}
	return g
}

// Allowed reports whether path is served without a credential.
func (g *Gate) Allowed(path string) bool {
	if _, ok := g.paths[path]; ok {
		return true
	}
	for _, p := range g.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Middleware rejects requests without a well-formed bearer token with 401
// missing_token. Pre-flight requests and allow-listed paths pass untouched.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || g.Allowed(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			g.logger.Debug(r.Context(), "request rejected",
				observe.Field{Key: "path", Value: r.URL.Path},
				observe.Field{Key: "error", Value: err},
			)
			w.Header().Set("WWW-Authenticate", "Bearer")
			WriteError(w, http.StatusUnauthorized, CodeMissingToken, "Authorization header with a bearer token is required")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
	})
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is case-insensitive.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedHeader
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMalformedHeader
	}
	return token, nil
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// WriteError writes the JSON error body {"error":{"message","code"}}.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Message: message, Code: code}})
}
