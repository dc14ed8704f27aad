package tenant

import (
	"context"
	"strings"
)

type contextKey string

const tenantContextKey contextKey = "tenant.id"

// With stores the store (tenant) identifier inside the context.
func With(ctx context.Context, tenantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tenantContextKey, strings.TrimSpace(tenantID))
}

// FromContext extracts the tenant identifier from the context if available.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	tenantID, ok := ctx.Value(tenantContextKey).(string)
	if !ok || tenantID == "" {
		return "", false
	}
	return tenantID, true
}

// Key joins parts with ":" and prefixes the tenant id when ctx carries one.
// Cache entries, locks and idempotency keys all go through it so tenants
// never share keys.
func Key(ctx context.Context, parts ...string) string {
	key := strings.Join(parts, ":")
	if id, ok := FromContext(ctx); ok {
		return id + ":" + key
	}
	return key
}

// Pattern is Key for Redis glob patterns: the tenant id is escaped so it
// only ever matches itself, while parts are passed through unescaped.
func Pattern(ctx context.Context, parts ...string) string {
	key := strings.Join(parts, ":")
	if id, ok := FromContext(ctx); ok {
		return globEscaper.Replace(id) + ":" + key
	}
	return key
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// Valid reports whether id is usable as a tenant id: 1 to 64 characters of
// letters, digits, '-' and '_'.
func Valid(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
