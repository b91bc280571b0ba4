package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medyassinekhlif/TrueCare/internal/config"
	"github.com/medyassinekhlif/TrueCare/internal/domain/registry/registrytest"
	"github.com/medyassinekhlif/TrueCare/internal/domain/reimbursement"
	"github.com/medyassinekhlif/TrueCare/internal/platform/auth"
	"github.com/medyassinekhlif/TrueCare/internal/platform/predictor"
)

// ---------------------------------------------------------------------------
// In-memory wiring
// ---------------------------------------------------------------------------

type memEstimations struct {
	mu    sync.Mutex
	items map[uuid.UUID]*reimbursement.Estimation
}

func (m *memEstimations) Create(_ context.Context, e *reimbursement.Estimation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[e.MedicalBulletinID]; ok {
		return reimbursement.ErrDuplicateEstimation
	}
	e.ID = uuid.New()
	m.items[e.MedicalBulletinID] = e
	return nil
}

func (m *memEstimations) GetByBulletin(_ context.Context, id uuid.UUID) (*reimbursement.Estimation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.items[id]; ok {
		return e, nil
	}
	return nil, reimbursement.ErrEstimationNotFound
}

func (m *memEstimations) ListByClient(_ context.Context, clientID uuid.UUID) ([]*reimbursement.Estimation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*reimbursement.Estimation
	for _, e := range m.items {
		if e.ClientID == clientID {
			out = append(out, e)
		}
	}
	return out, nil
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type fixedPredictor struct{}

func (fixedPredictor) Predict(context.Context, string, string) (*predictor.Response, error) {
	class, amount := reimbursement.ClassHigh, 640.0
	return &predictor.Response{ReimbursementClass: &class, ReimbursementAmount: &amount}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Env:              "development",
		StoreDriver:      config.DriverPostgres,
		CORSOrigins:      []string{"http://localhost:3000"},
		RateLimitRPS:     1000,
		RateLimitBurst:   1000,
		RequestTimeout:   5 * time.Second,
		PredictorURL:     "http://predictor.invalid",
		PredictorTimeout: time.Second,
	}
}

func newTestServer(t *testing.T) (http.Handler, *registrytest.Store) {
	t.Helper()
	store := registrytest.New()
	st := &stores{
		registry:    store.Repos(),
		estimations: &memEstimations{items: map[uuid.UUID]*reimbursement.Estimation{}},
		health:      okPinger{},
		close:       func() {},
	}
	e, err := newServer(testConfig(), newLogger(nil), st, fixedPredictor{})
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	return e, store
}

func do(h http.Handler, method, path, body, userID, roles string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(auth.DevUserHeader, userID)
		req.Header.Set(auth.DevRolesHeader, roles)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

func TestServer_Health(t *testing.T) {
	h, _ := newTestServer(t)
	for _, path := range []string{"/health", "/health/db"} {
		rec := do(h, http.MethodGet, path, "", "", "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestServer_EstimateFlow(t *testing.T) {
	h, store := newTestServer(t)
	ins := store.AddInsurer("insurer@example.com", true)
	client := store.AddClient(ins, "Amira", "amira@example.com")
	doc := store.AddDoctor("doctor@example.com")
	b := store.AddBulletin(doc, client, 800)

	body := fmt.Sprintf(`{"clientId":%q,"medicalBulletinId":%q}`, client.ID, b.ID)
	rec := do(h, http.MethodPost, "/api/v1/insurer/estimations", body, ins.UserID.String(), auth.RoleInsurer)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(h, http.MethodPost, "/api/v1/insurer/estimations", body, ins.UserID.String(), auth.RoleInsurer)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 on repeat, got %d", rec.Code)
	}

	rec = do(h, http.MethodGet, "/api/v1/client/bulletins/"+b.ID.String(), "", client.UserID.String(), auth.RoleClient)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"reimbursementClass":"High"`) {
		t.Errorf("client view: %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_RoleGuard(t *testing.T) {
	h, store := newTestServer(t)
	doc := store.AddDoctor("doctor@example.com")

	rec := do(h, http.MethodPost, "/api/v1/insurer/estimations", `{}`, doc.UserID.String(), auth.RoleDoctor)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func TestRootCmd_Subcommands(t *testing.T) {
	want := map[string]bool{"serve": false, "migrate": false, "token": false, "seed": false, "backfill": false}
	for _, c := range newRootCmd().Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing %q command", name)
		}
	}
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/truecare")
	t.Setenv("AUTH_SIGNING_KEY", strings.Repeat("ab", 32))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--sub", uuid.NewString(), "--role", auth.RoleInsurer})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}
	if parts := strings.Split(strings.TrimSpace(out.String()), "."); len(parts) != 3 {
		t.Errorf("expected a JWT, got %q", out.String())
	}
}

func TestBackfillCmd_RequiresInsurer(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"backfill"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "--insurer") {
		t.Errorf("expected --insurer error, got %v", err)
	}
}

func TestServeCmd_ReturnsConfigError(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Errorf("expected a load config error, got %v", err)
	}
}
