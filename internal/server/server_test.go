package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/deskdata/deskdata/internal/catalog"
	"github.com/deskdata/deskdata/internal/config"
	"github.com/deskdata/deskdata/internal/connector"
	"github.com/deskdata/deskdata/internal/connector/serverless"
	"github.com/deskdata/deskdata/internal/handler"
	"github.com/deskdata/deskdata/internal/model"
	"github.com/deskdata/deskdata/internal/observability"
	"github.com/deskdata/deskdata/internal/query"
	"github.com/deskdata/deskdata/internal/retrieval"
	"github.com/deskdata/deskdata/internal/service"
	"github.com/deskdata/deskdata/internal/tenantdb"
)

const testJWTSecret = "test-secret-for-server-tests"

type testServer struct {
	srv   *Server
	auth  *service.AuthService
	mock  sqlmock.Sqlmock
	store *config.Store
	built int
}

// newTestServer builds the full stack over an in-memory config store and a
// sqlmock-backed serverless connector.
func newTestServer(t *testing.T, ready map[string]Pinger) *testServer {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RateLimit = 0
	cfg.IPRateLimit = 0
	return newTestServerWithConfig(t, cfg, ready)
}

func newTestServerWithConfig(t *testing.T, cfg Config, ready map[string]Pinger) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	secretStore, err := config.NewLocalSecretStore(store, "server test passphrase")
	if err != nil {
		t.Fatalf("NewLocalSecretStore: %v", err)
	}

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ts := &testServer{mock: mock, store: store, auth: service.NewAuthService(testJWTSecret, "")}

	registry := connector.NewRegistry()
	registry.RegisterProvider(model.ProviderServerlessSQL, func(context.Context, model.DatabaseConfig) (connector.Connector, error) {
		ts.built++
		return serverless.New(sqlx.NewDb(db, "pgx")), nil
	})

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	adapter := tenantdb.NewAdapter(
		tenantdb.NewResolver(secretStore, logger, tenantdb.WithResolverMetrics(metrics)),
		registry,
		tenantdb.Options{Logger: logger, Metrics: metrics},
	)
	orchestrator := retrieval.New(adapter, catalog.NewFinder(adapter, nil), nil, nil, retrieval.Options{Logger: logger, Metrics: metrics})

	if ready == nil {
		ready = map[string]Pinger{"config_store": store}
	}
	ts.srv = New(cfg, Deps{
		Auth: ts.auth,
		Tenant: handler.TenantDeps{
			Asker:   orchestrator,
			Tables:  adapter,
			Tenants: service.NewTenantService(store, secretStore, adapter, logger),
		},
		Metrics:  metrics,
		Gatherer: reg,
		Ready:    ready,
	}, logger)
	return ts
}

func (ts *testServer) token(t *testing.T, tenant, email string) string {
	t.Helper()
	token, err := ts.auth.IssueJWT(context.Background(), tenant, email, time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	ts.srv.ServeHTTP(rr, req)
	return rr
}

// ---------------------------------------------------------------------------
// Health and metrics
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	rr := ts.do(t, "GET", "/healthz", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("healthz = %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID on every response")
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("qdrant unreachable") }

func TestReadyz(t *testing.T) {
	ts := newTestServer(t, nil)
	if rr := ts.do(t, "GET", "/readyz", "", nil); rr.Code != http.StatusOK {
		t.Errorf("readyz = %d %s", rr.Code, rr.Body.String())
	}

	ts = newTestServer(t, map[string]Pinger{"knowledge_base": failingPinger{}})
	rr := ts.do(t, "GET", "/readyz", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d, want 503", rr.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" || !strings.Contains(body.Checks["knowledge_base"], "qdrant unreachable") {
		t.Errorf("body = %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, "GET", "/healthz", "", nil)

	rr := ts.do(t, "GET", "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `deskdata_http_requests_total{code="2xx",method="GET",route="/healthz"} 1`) {
		t.Errorf("metrics output missing healthz counter:\n%s", rr.Body.String())
	}
}

func TestReadyzIsThrottledPerIP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 0
	cfg.IPRateLimit = 2
	ts := newTestServerWithConfig(t, cfg, nil)

	for i := 0; i < 2; i++ {
		if rr := ts.do(t, "GET", "/readyz", "", nil); rr.Code != http.StatusOK {
			t.Fatalf("request %d: readyz = %d", i+1, rr.Code)
		}
	}
	if rr := ts.do(t, "GET", "/readyz", "", nil); rr.Code != http.StatusTooManyRequests {
		t.Errorf("third readyz = %d, want 429", rr.Code)
	}
	if rr := ts.do(t, "GET", "/healthz", "", nil); rr.Code != http.StatusOK {
		t.Errorf("healthz must stay unthrottled, got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Tenant API
// ---------------------------------------------------------------------------

func TestTenantRoutesRequireAuth(t *testing.T) {
	ts := newTestServer(t, nil)

	if rr := ts.do(t, "GET", "/api/v1/tenants/org_A/tables", "", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rr.Code)
	}
	if rr := ts.do(t, "GET", "/api/v1/tenants/org_A/tables", "forged.token.value", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rr.Code)
	}
}

func TestTenantCannotReachAnotherTenant(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.token(t, "org_A", "")

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/v1/tenants/org_B/tables"},
		{"PUT", "/api/v1/tenants/org_B/database"},
		{"DELETE", "/api/v1/tenants/org_B/database/cache"},
		{"POST", "/api/v1/tenants/org_B/ask"},
	} {
		rr := ts.do(t, tc.method, tc.path, token, map[string]string{"query": "x"})
		if rr.Code != http.StatusForbidden {
			t.Errorf("%s %s: status = %d, want 403", tc.method, tc.path, rr.Code)
		}
	}
	if ts.built != 0 {
		t.Errorf("a connector was built for a forbidden request")
	}
}

func TestUnconfiguredTenantWithoutFallback(t *testing.T) {
	ts := newTestServer(t, nil)
	rr := ts.do(t, "GET", "/api/v1/tenants/org_A/tables", ts.token(t, "org_A", ""), nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422: %s", rr.Code, rr.Body.String())
	}
}

func TestConfigureThenQuery(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.token(t, "org_A", "ana@example.com")

	rr := ts.do(t, "PUT", "/api/v1/tenants/org_A/database", token, map[string]string{
		"provider":         "serverless_sql",
		"connectionString": "postgres://clinic:pw@ep-a.neon.tech/clinic",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("configure = %d %s", rr.Code, rr.Body.String())
	}

	ts.mock.ExpectQuery(regexp.QuoteMeta(query.ListTablesSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("appointments").AddRow("doctors"))

	rr = ts.do(t, "GET", "/api/v1/tenants/org_A/tables", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("tables = %d %s", rr.Code, rr.Body.String())
	}
	var list model.ListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Resource) != 2 || list.Resource[1]["name"] != "doctors" {
		t.Errorf("tables = %v", list.Resource)
	}

	ts.mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "doctors" ORDER BY 1 LIMIT $1 OFFSET $2`)).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Dr. Rao"))

	rr = ts.do(t, "POST", "/api/v1/tenants/org_A/ask", token, map[string]string{"query": "which doctors work here"})
	if rr.Code != http.StatusOK {
		t.Fatalf("ask = %d %s", rr.Code, rr.Body.String())
	}
	var answer model.RetrievalAnswer
	if err := json.Unmarshal(rr.Body.Bytes(), &answer); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if answer.Source != model.SourceDatabase || !strings.Contains(answer.Summary, "Dr. Rao") {
		t.Errorf("answer = %+v", answer)
	}

	if rr := ts.do(t, "GET", "/api/v1/tenants/org_A/tables/doctors%3Bdrop", token, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("invalid table: status = %d, want 400", rr.Code)
	}

	if err := ts.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("sql expectations: %v", err)
	}
	if ts.built != 1 {
		t.Errorf("connectors built = %d, want 1", ts.built)
	}
}
