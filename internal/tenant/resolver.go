package tenant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/shrimpsizemoose/gradeinsight/internal/models"
)

// Main is the tenant served on the bare base domain.
const Main = "main"

var (
	ErrInvalidHost         = errors.New("invalid host")
	ErrReservedSubdomain   = errors.New("subdomain is reserved")
	ErrInvalidTenantFormat = errors.New("invalid tenant id format")
)

var DefaultReserved = []string{
	"www", "api", "app", "mail", "email", "ftp", "ssh",
	"test", "staging", "dev", "demo", "support", "help",
	"blog", "docs", "status", "monitor", "cdn", "static", "assets",
}

// Resolver maps a request Host to a tenant id.
type Resolver struct {
	baseDomain string
	reserved   map[string]bool
}

func NewResolver(baseDomain string, reserved []string) *Resolver {
	if reserved == nil {
		reserved = DefaultReserved
	}
	r := &Resolver{
		baseDomain: normalizeHost(baseDomain),
		reserved:   make(map[string]bool, len(reserved)),
	}
	for _, name := range reserved {
		r.reserved[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return r
}

func (r *Resolver) Resolve(host string) (string, error) {
	host = normalizeHost(host)
	if host == "" {
		return "", fmt.Errorf("%w: empty host", ErrInvalidHost)
	}
	if host == r.baseDomain {
		return Main, nil
	}

	suffix := "." + r.baseDomain
	if !strings.HasSuffix(host, suffix) {
		return "", fmt.Errorf("%w: %s is not under %s", ErrInvalidHost, host, r.baseDomain)
	}

	sub := strings.TrimSuffix(host, suffix)
	if r.reserved[sub] {
		return "", fmt.Errorf("%w: %s", ErrReservedSubdomain, sub)
	}
	// models.IsTenantID also rejects dots, so a.b.base never resolves
	if !models.IsTenantID(sub) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTenantFormat, sub)
	}
	return sub, nil
}

func normalizeHost(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(raw); err == nil {
		raw = strings.TrimSpace(h)
	}
	return strings.TrimSuffix(raw, ".")
}

type ctxKey struct{}

func WithTenant(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the tenant id set by the HTTP middleware.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
