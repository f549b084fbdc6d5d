package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubdomains map[string]string

func (f fakeSubdomains) TenantBySubdomain(_ context.Context, sub string) (string, bool, error) {
	id, ok := f[sub]
	return id, ok, nil
}

func TestResolve_Order(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	tok, err := m.Issue(now, "from-token", "u1", "owner")
	require.NoError(t, err)

	r := &Resolver{
		Tokens:              m,
		AllowHeaderOverride: true,
		BaseDomain:          "example.com",
		Subdomains:          fakeSubdomains{"acme": "from-subdomain"},
		Now:                 func() time.Time { return now },
	}

	req := httptest.NewRequest(http.MethodGet, "http://acme.example.com/x", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-Tenant-ID", "from-header")

	id, ok := r.Resolve(req)
	require.True(t, ok)
	assert.Equal(t, "from-token", id.TenantID)
	assert.Equal(t, SourceToken, id.Source)

	// Invalid token falls through to the header.
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	id, ok = r.Resolve(req)
	require.True(t, ok)
	assert.Equal(t, "from-header", id.TenantID)

	// Header ignored when disabled; subdomain used.
	r.AllowHeaderOverride = false
	id, ok = r.Resolve(req)
	require.True(t, ok)
	assert.Equal(t, "from-subdomain", id.TenantID)
	assert.Equal(t, SourceSubdomain, id.Source)
}

func TestResolve_None(t *testing.T) {
	r := &Resolver{}
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Tenant-ID", "t1")
	_, ok := r.Resolve(req)
	assert.False(t, ok)
}

func TestSubdomainOf(t *testing.T) {
	cases := map[string]string{
		"acme.example.com":      "acme",
		"acme.example.com:8080": "acme",
		"ACME.Example.com":      "acme",
		"example.com":           "",
		"www.example.com":       "",
		"a.b.example.com":       "",
		"acme.other.com":        "",
	}
	for host, want := range cases {
		assert.Equal(t, want, subdomainOf(host, "example.com"), host)
	}
}

func TestRequireTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	res := &Resolver{AllowHeaderOverride: true}
	r.GET("/x", RequireTenant(res), func(c *gin.Context) {
		tid, err := TenantID(c.Request.Context())
		if err != nil {
			c.Status(500)
			return
		}
		c.String(200, tid)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Tenant context required")

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Tenant-ID", "t1")
	r.ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "t1", w.Body.String())
}

func TestOptionalTenant_Proceeds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", OptionalTenant(&Resolver{}), func(c *gin.Context) {
		c.String(200, "tenant=%s", c.GetString("tenant_id"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "tenant=", w.Body.String())
}

func TestPostgresSubdomains(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT tenant_id FROM tenants`).WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}).AddRow("t-acme"))
	mock.ExpectQuery(`SELECT tenant_id FROM tenants`).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}))

	p := PostgresSubdomains{DB: db}
	id, ok, err := p.TenantBySubdomain(context.Background(), "acme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "t-acme", id)

	_, ok, err = p.TenantBySubdomain(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
