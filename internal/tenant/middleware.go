package tenant

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// DefaultHeader carries the store id on API requests.
const DefaultHeader = "X-Store-ID"

// Resolver resolves the store a request belongs to from a header or the
// request subdomain (store1.kasir.example.com).
type Resolver struct {
	HeaderName    string
	RootDomain    string
	DefaultTenant string
}

// NewResolver returns a resolver. An empty headerName falls back to DefaultHeader.
func NewResolver(headerName, rootDomain, defaultTenant string) *Resolver {
	if headerName == "" {
		headerName = DefaultHeader
	}
	return &Resolver{
		HeaderName:    headerName,
		RootDomain:    strings.ToLower(strings.TrimSpace(rootDomain)),
		DefaultTenant: strings.TrimSpace(defaultTenant),
	}
}

// Middleware injects the resolved tenant into the request context. Ids that
// fail Valid are rejected with 400.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		tenantID := r.Resolve(req)
		if tenantID == "" {
			tenantID = r.DefaultTenant
		}
		if tenantID != "" && !Valid(tenantID) {
			writeInvalid(w)
			return
		}
		if tenantID != "" {
			req = req.WithContext(With(req.Context(), tenantID))
		}
		next.ServeHTTP(w, req)
	})
}

// Resolve returns the header value when present, else the subdomain below RootDomain.
func (r *Resolver) Resolve(req *http.Request) string {
	if r == nil || req == nil {
		return ""
	}
	if tenantID := strings.TrimSpace(req.Header.Get(r.HeaderName)); tenantID != "" {
		return tenantID
	}
	host := strings.ToLower(hostWithoutPort(req.Host))
	if host == "" || r.RootDomain == "" || host == r.RootDomain {
		return ""
	}
	sub, ok := strings.CutSuffix(host, "."+r.RootDomain)
	if !ok {
		return ""
	}
	if idx := strings.LastIndex(sub, "."); idx >= 0 {
		sub = sub[idx+1:]
	}
	return sub
}

func hostWithoutPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.Trim(h, "[]")
	}
	return strings.Trim(hostport, "[]")
}

// writeInvalid renders the API error envelope without importing common,
// which depends on this package.
func writeInvalid(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{
		"code":    "INVALID_TENANT",
		"message": "store id must be 1-64 letters, digits, '-' or '_'",
	}})
}
