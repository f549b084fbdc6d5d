package auth

import "github.com/golang-jwt/jwt/v5"

// Claims are the only supported JWT claims shape for this service.
// TenantID is mandatory; a token without it never resolves a tenant.
type Claims struct {
	jwt.RegisteredClaims

	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Identity is the resolved caller of a request.
type Identity struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id,omitempty"`
	Role     string `json:"role,omitempty"`

	// Source records which resolution method matched: token, header or subdomain.
	Source string `json:"source"`
}

const (
	SourceToken     = "token"
	SourceHeader    = "header"
	SourceSubdomain = "subdomain"
)
