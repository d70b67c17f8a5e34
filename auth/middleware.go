package auth

import (
	"net/http"

	"github.com/jonwraymond/toolgate/observe"
)

// RequireIdentity verifies the bearer token of every request with v and
// binds the token and the verified identity to the request context.
//
// Any failure yields 401 invalid_token. The reason is logged, not returned.
func RequireIdentity(v *Verifier, logger observe.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observe.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				logger.Debug(r.Context(), "request rejected", observe.Field{Key: "error", Value: err})
				unauthorized(w)
				return
			}

			id := v.Verify(r.Context(), token)
			if id == nil {
				unauthorized(w)
				return
			}

			ctx := WithIdentity(WithToken(r.Context(), token), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	WriteError(w, http.StatusUnauthorized, CodeInvalidToken, "the access token is missing or invalid")
}
