package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nekotab/control-plane/domains/tenants/handler"
	"github.com/nekotab/control-plane/domains/tenants/repo"
	"github.com/nekotab/control-plane/domains/tenants/service"
	"github.com/nekotab/control-plane/platform/secrets"
	"github.com/nekotab/control-plane/platform/tenant"
)

const testAPIKey = "test-api-key"

type nopDB struct{}

func (nopDB) CreateDatabase(ctx context.Context, dbName, dbUser, password string) error { return nil }
func (nopDB) DropDatabase(ctx context.Context, dbName, dbUser string) error             { return nil }

type nopStack struct{}

func (nopStack) Deploy(ctx context.Context, params service.StackParams) error      { return nil }
func (nopStack) Remove(ctx context.Context, tenantID string) error                 { return nil }
func (nopStack) Scale(ctx context.Context, tenantID string, replicas int) error    { return nil }
func (nopStack) WaitHealthy(ctx context.Context, tenantID string) (bool, error)    { return true, nil }
func (nopStack) RunMigrations(ctx context.Context, tenantID string) error          { return nil }

type testEnv struct {
	server *httptest.Server
	svc    *service.Service
	cancel context.CancelFunc
	queue  *service.ProvisionQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32))
	box, err := secrets.NewBox(key)
	require.NoError(t, err)

	svc := service.New(
		repo.NewMemoryRepository(),
		repo.NewMemoryAuditLog(),
		nopDB{}, nopStack{}, box, zap.NewNop(),
		service.Config{TeardownSettle: time.Millisecond},
	)

	queue := service.NewProvisionQueue(svc, zap.NewNop(), 8)
	ctx, cancel := context.WithCancel(context.Background())
	queue.Start(ctx)

	h := handler.New(svc, queue, "nekotab.test")

	r := chi.NewRouter()
	r.Use(handler.APIKeyAuth(testAPIKey))
	r.Group(h.Routes)

	env := &testEnv{server: httptest.NewServer(r), svc: svc, cancel: cancel, queue: queue}
	t.Cleanup(func() {
		env.server.Close()
		cancel()
		queue.Wait()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// waitActive polls until background provisioning finishes.
func (e *testEnv) waitActive(t *testing.T, subdomain string) service.Tenant {
	t.Helper()
	id := tenant.GenerateID(subdomain)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tn, err := e.svc.Get(context.Background(), id)
		if err == nil && tn.Status == service.StatusActive {
			return tn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("tenant %s never became active", subdomain)
	return service.Tenant{}
}

func TestCreateTenantAccepted(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/tenants", map[string]any{"subdomain": "oxford-open"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "oxford-open", body["subdomain"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "https://oxford-open.nekotab.test", body["url"])

	env.waitActive(t, "oxford-open")
}

func TestCreateTenantValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name      string
		subdomain string
	}{
		{"too short", "ab"},
		{"uppercase", "Oxford"},
		{"underscore", "ox_ford"},
		{"reserved", "admin"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/tenants", map[string]any{"subdomain": tc.subdomain})
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			resp.Body.Close()
		})
	}
}

func TestCreateTenantDuplicate(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/tenants", map[string]any{"subdomain": "oxford-open"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
	env.waitActive(t, "oxford-open")

	resp = env.do(t, http.MethodPost, "/tenants", map[string]any{"subdomain": "oxford-open"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestGetTenant(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/tenants", map[string]any{"subdomain": "oxford-open"})
	resp.Body.Close()
	tn := env.waitActive(t, "oxford-open")

	resp = env.do(t, http.MethodGet, "/tenants/"+tn.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, tn.ID, body["id"])
	assert.Equal(t, "active", body["status"])

	// Credentials must never appear in API responses.
	_, hasPassword := body["db_password_enc"]
	assert.False(t, hasPassword)

	resp = env.do(t, http.MethodGet, "/tenants/000000000000", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestListTenants(t *testing.T) {
	env := newTestEnv(t)
	for _, sub := range []string{"alpha-club", "beta-club", "gamma-club"} {
		resp := env.do(t, http.MethodPost, "/tenants", map[string]any{"subdomain": sub})
		resp.Body.Close()
		env.waitActive(t, sub)
	}

	resp := env.do(t, http.MethodGet, "/tenants?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, float64(3), body["total_items"])
	assert.Equal(t, float64(2), body["total_pages"])
	assert.Len(t, body["tenants"], 2)

	resp = env.do(t, http.MethodGet, "/tenants?status=active", nil)
	body = decode(t, resp)
	assert.Equal(t, float64(3), body["total_items"])

	resp = env.do(t, http.MethodGet, "/tenants?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSuspendResumeCycle(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/tenants", map[string]any{"subdomain": "oxford-open"})
	resp.Body.Close()
	tn := env.waitActive(t, "oxford-open")

	resp = env.do(t, http.MethodPost, "/tenants/"+tn.ID+"/suspend", map[string]any{"reason": "billing"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "suspended", body["status"])
	assert.Equal(t, "billing", body["suspend_reason"])

	// Resuming an active tenant conflicts; resuming a suspended one works.
	resp = env.do(t, http.MethodPost, "/tenants/"+tn.ID+"/suspend", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/tenants/"+tn.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, "active", body["status"])
}

func TestDeleteRequiresConfirm(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/tenants", map[string]any{"subdomain": "oxford-open"})
	resp.Body.Close()
	tn := env.waitActive(t, "oxford-open")

	resp = env.do(t, http.MethodDelete, "/tenants/"+tn.ID, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodDelete, "/tenants/"+tn.ID+"?confirm=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "deleted", body["status"])
}

func TestAuditTrailEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/tenants", map[string]any{"subdomain": "oxford-open"})
	resp.Body.Close()
	tn := env.waitActive(t, "oxford-open")

	resp = env.do(t, http.MethodGet, "/tenants/"+tn.ID+"/audit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, tn.ID, body["tenant_id"])

	entries := body["entries"].([]any)
	require.Len(t, entries, 2)
	first := entries[0].(map[string]any)
	assert.Equal(t, "create", first["action"])
	assert.Equal(t, "started", first["status"])
	last := entries[1].(map[string]any)
	assert.Equal(t, "success", last["status"])

	resp = env.do(t, http.MethodGet, "/tenants/000000000000/audit", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/tenants", map[string]any{"subdomain": "oxford-open"})
	resp.Body.Close()
	env.waitActive(t, "oxford-open")

	resp = env.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, float64(1), body["total_tenants"])
}

func TestSignupWebhook(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/webhooks/signup", map[string]any{
		"subdomain":         "signup-club",
		"organization_name": "Signup Club",
		"email":             "owner@example.org",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	tn := env.waitActive(t, "signup-club")
	require.NotNil(t, tn.OwnerEmail)
	assert.Equal(t, "owner@example.org", *tn.OwnerEmail)
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/tenants", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	req.Header.Set("X-API-Key", "wrong-key")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	bodyResp := env.do(t, http.MethodGet, "/tenants", nil)
	assert.Equal(t, http.StatusOK, bodyResp.StatusCode)
	bodyResp.Body.Close()
}

func TestUnknownStatusFilterRejectedBeforeQuery(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/tenants?status="+strings.Repeat("x", 5), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
