package oauth

import "context"

type contextKey struct{}

var authInfoKey contextKey

// WithAuthInfo attaches the verified identity to the context so downstream
// handlers (the MCP tools in particular) can read it.
func WithAuthInfo(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authInfoKey, info)
}

// AuthInfoFromContext returns the identity attached by the auth middleware,
// or nil when the request was not authenticated (stdio transport).
func AuthInfoFromContext(ctx context.Context) *AuthInfo {
	info, _ := ctx.Value(authInfoKey).(*AuthInfo)
	return info
}
