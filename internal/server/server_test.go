package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojix/lojix/internal/billing"
	"github.com/lojix/lojix/internal/config"
	"github.com/lojix/lojix/internal/idgen"
	"github.com/lojix/lojix/internal/payments"
	"github.com/lojix/lojix/internal/tenant"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubGateway keeps server tests off the network.
type stubGateway struct{}

func (stubGateway) CreatePayment(_ context.Context, _ string, req *payments.PaymentRequest) (*payments.Payment, error) {
	return &payments.Payment{ID: "pay_stub", Status: "pending", ExternalReference: req.ExternalReference, QRCode: "qr"}, nil
}

func (stubGateway) GetPayment(context.Context, string) (*payments.Payment, error) {
	return nil, payments.ErrPaymentNotFound
}

func (stubGateway) SearchByExternalReference(context.Context, string) ([]*payments.Payment, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Port:                "0",
		Env:                 "development",
		LogLevel:            "error",
		GatewayBaseURL:      "https://gateway.test",
		DefaultMonthlyPrice: "99.90",
		AdminSecret:         "test-admin-secret",
		SuperAdminEmails:    []string{"root@lojix.test"},
		RateLimitRPM:        10000,
		AllowedOrigins:      []string{"*"},
	}
}

func newTestServer(t *testing.T) (*Server, *tenant.MemoryStore, *billing.MemoryStore) {
	t.Helper()
	tenants := tenant.NewMemoryStore()
	charges := billing.NewMemoryStore()

	srv, err := New(testConfig(),
		WithStores(tenants, charges),
		WithGatewayClient(stubGateway{}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { srv.rateLimiter.Stop() })
	return srv, tenants, charges
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func adminHeaders() map[string]string {
	return map[string]string{"X-Admin-Secret": "test-admin-secret"}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// not ready until Run marks it
	w = doJSON(t, srv, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRegistrationAndApprovalFlow(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/v1/tenants", gin.H{
		"storeName":  "Loja HTTP",
		"ownerName":  "Maria",
		"ownerEmail": "maria@loja.test",
		"ownerPhone": "+55 11 99999-0000",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Tenant tenant.Tenant `json:"tenant"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, tenant.StatusPending, created.Tenant.Status)

	// admin routes reject a missing secret
	w = doJSON(t, srv, http.MethodPost, "/v1/admin/tenants/"+created.Tenant.ID+"/approve", gin.H{"adminId": "adm_1"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, srv, http.MethodPost, "/v1/admin/tenants/"+created.Tenant.ID+"/approve", gin.H{"adminId": "adm_1"}, adminHeaders())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var approved struct {
		Tenant tenant.Tenant `json:"tenant"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &approved))
	assert.Equal(t, tenant.StatusActive, approved.Tenant.Status)
}

func TestAccessGateOnStoreSurface(t *testing.T) {
	srv, tenants, _ := newTestServer(t)

	tn := &tenant.Tenant{
		ID:         idgen.WithPrefix("ten_"),
		StoreName:  "Loja Gate",
		OwnerEmail: "owner@gate.test",
		Status:     tenant.StatusActive,
	}
	require.NoError(t, tenants.Create(context.Background(), tn))
	u := &tenant.StoreUser{
		ID:       idgen.WithPrefix("usr_"),
		TenantID: tn.ID,
		Email:    "staff@gate.test",
		Role:     tenant.RoleCashier,
		Active:   true,
	}
	require.NoError(t, tenants.CreateUser(context.Background(), u))

	// no principal
	w := doJSON(t, srv, http.MethodGet, "/v1/store/profile", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// unknown principal
	w = doJSON(t, srv, http.MethodGet, "/v1/store/profile", nil, map[string]string{
		"X-Authenticated-Email": "stranger@gate.test",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// valid principal
	w = doJSON(t, srv, http.MethodGet, "/v1/store/profile", nil, map[string]string{
		"X-Authenticated-Email": "staff@gate.test",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// suspended tenant closes the gate
	tn.Status = tenant.StatusSuspended
	require.NoError(t, tenants.Update(context.Background(), tn))
	w = doJSON(t, srv, http.MethodGet, "/v1/store/profile", nil, map[string]string{
		"X-Authenticated-Email": "staff@gate.test",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "TENANT_SUSPENDED")

	// super admin bypasses tenant status
	w = doJSON(t, srv, http.MethodGet, "/v1/store/profile", nil, map[string]string{
		"X-Authenticated-Email": "root@lojix.test",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChargeIsolationBetweenTenants(t *testing.T) {
	srv, tenants, charges := newTestServer(t)

	mk := func(email string) *tenant.Tenant {
		tn := &tenant.Tenant{
			ID:         idgen.WithPrefix("ten_"),
			StoreName:  "Loja " + email,
			OwnerEmail: email,
			Status:     tenant.StatusActive,
		}
		require.NoError(t, tenants.Create(context.Background(), tn))
		require.NoError(t, tenants.CreateUser(context.Background(), &tenant.StoreUser{
			ID:       idgen.WithPrefix("usr_"),
			TenantID: tn.ID,
			Email:    email,
			Role:     tenant.RoleOwner,
			Active:   true,
		}))
		return tn
	}
	a := mk("a@iso.test")
	b := mk("b@iso.test")

	chargeA := &billing.Charge{
		ID:       idgen.WithPrefix("chg_"),
		TenantID: a.ID,
		DueDate:  mustDate("2026-02-01"),
		Status:   billing.ChargePending,
	}
	require.NoError(t, charges.Create(context.Background(), chargeA))
	_ = b

	// owner of A can ask about A's charge
	w := doJSON(t, srv, http.MethodGet, "/v1/store/charges/"+chargeA.ID+"/payment-status", nil, map[string]string{
		"X-Authenticated-Email": "a@iso.test",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// owner of B gets the same answer for A's charge as for a missing one
	w = doJSON(t, srv, http.MethodGet, "/v1/store/charges/"+chargeA.ID+"/payment-status", nil, map[string]string{
		"X-Authenticated-Email": "b@iso.test",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/v1/store/charges/chg_missing/payment-status", nil, map[string]string{
		"X-Authenticated-Email": "b@iso.test",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLoginRateLimitEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := gin.H{"email": "login@lojix.test"}

	w := doJSON(t, srv, http.MethodPost, "/v1/auth/ratelimit/check", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"remaining":5`)

	for i := 0; i < 5; i++ {
		w = doJSON(t, srv, http.MethodPost, "/v1/auth/ratelimit/failure", body, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Contains(t, w.Body.String(), `"allowed":false`)

	w = doJSON(t, srv, http.MethodPost, "/v1/auth/ratelimit/success", body, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodPost, "/v1/auth/ratelimit/check", body, nil)
	assert.Contains(t, w.Body.String(), `"remaining":5`)
}

func TestWebhookReceiverIgnoresNonPayment(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/webhooks/payments", gin.H{
		"id":     "evt_1",
		"type":   "plan",
		"action": "created",
		"data":   gin.H{"id": "plan_1"},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
}

func mustDate(s string) (t time.Time) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
