package auth

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	tenantHeader        = "X-Tenant-ID"
)

// SubdomainLookup maps a tenant subdomain to a tenant id.
type SubdomainLookup interface {
	TenantBySubdomain(ctx context.Context, subdomain string) (tenantID string, ok bool, err error)
}

// Resolver determines the tenant of an inbound request.
// Methods are tried in order: bearer token, X-Tenant-ID header, Host subdomain.
type Resolver struct {
	Tokens              *Manager
	AllowHeaderOverride bool
	BaseDomain          string
	Subdomains          SubdomainLookup
	Log                 *slog.Logger
	Now                 func() time.Time
}

func (r *Resolver) Resolve(req *http.Request) (Identity, bool) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	if tok, ok := bearerToken(req); ok && r.Tokens != nil {
		claims, err := r.Tokens.Verify(tok, r.now())
		if err == nil {
			return Identity{
				TenantID: claims.TenantID,
				UserID:   claims.UserID,
				Role:     claims.Role,
				Source:   SourceToken,
			}, true
		}
		log.Warn("invalid bearer token, falling through", "error", err)
	}

	if r.AllowHeaderOverride {
		if tid := strings.TrimSpace(req.Header.Get(tenantHeader)); tid != "" {
			return Identity{TenantID: tid, Source: SourceHeader}, true
		}
	}

	if r.Subdomains != nil && r.BaseDomain != "" {
		sub := subdomainOf(req.Host, r.BaseDomain)
		if sub != "" {
			tid, ok, err := r.Subdomains.TenantBySubdomain(req.Context(), sub)
			if err != nil {
				log.Error("subdomain lookup failed", "subdomain", sub, "error", err)
			} else if ok {
				return Identity{TenantID: tid, Source: SourceSubdomain}, true
			}
		}
	}

	return Identity{}, false
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func bearerToken(req *http.Request) (string, bool) {
	raw := strings.TrimSpace(req.Header.Get(authorizationHeader))
	if !strings.HasPrefix(raw, bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
	return tok, tok != ""
}

// subdomainOf returns "acme" for host "acme.example.com" under base "example.com".
// Only a single label is accepted; "www" is never a tenant.
func subdomainOf(host, base string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	base = strings.ToLower(strings.TrimPrefix(base, "."))

	suffix := "." + base
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	sub := strings.TrimSuffix(host, suffix)
	if sub == "" || sub == "www" || strings.Contains(sub, ".") {
		return ""
	}
	return sub
}

// PostgresSubdomains resolves subdomains against the tenants table.
type PostgresSubdomains struct {
	DB *sql.DB
}

func (p PostgresSubdomains) TenantBySubdomain(ctx context.Context, subdomain string) (string, bool, error) {
	const q = `SELECT tenant_id FROM tenants WHERE subdomain = $1 AND is_active = true`
	var id string
	err := p.DB.QueryRowContext(ctx, q, subdomain).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}
