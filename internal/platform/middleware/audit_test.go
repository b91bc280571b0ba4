package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medyassinekhlif/TrueCare/internal/platform/auth"
)

// mockRecorder collects audit entries for assertions.
type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newTestContext(method, path string, opts ...func(*http.Request)) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withAuth(userID string, roles []string) func(*http.Request) {
	return func(req *http.Request) {
		*req = *req.WithContext(auth.WithIdentity(req.Context(), userID, roles))
	}
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestAudit_InsurerBulletinRead(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodGet, "/api/v1/insurer/bulletins/b-1/estimation",
		withAuth("user-1", []string{auth.RoleInsurer}))
	c.SetPath("/api/v1/insurer/bulletins/:bulletinId/estimation")
	c.SetParamNames("bulletinId")
	c.SetParamValues("b-1")
	c.Set("request_id", "req-9")

	if err := Audit(zerolog.New(os.Stderr), rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", rec.count())
	}
	entry := rec.last()
	if entry.UserID != "user-1" {
		t.Errorf("expected user-1, got %s", entry.UserID)
	}
	if entry.Area != "insurer" || entry.Resource != "bulletins" {
		t.Errorf("unexpected area/resource %s/%s", entry.Area, entry.Resource)
	}
	if entry.BulletinID != "b-1" {
		t.Errorf("expected bulletin b-1, got %s", entry.BulletinID)
	}
	if entry.Action != "read" || entry.StatusCode != http.StatusOK || entry.RequestID != "req-9" {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestAudit_CreateWithErrorStatus(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodPost, "/api/v1/insurer/estimations",
		withAuth("user-1", []string{auth.RoleInsurer}))

	handler := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "Insurer account not verified")
	}

	err := Audit(zerolog.New(os.Stderr), rec)(handler)(c)
	if err == nil {
		t.Fatal("expected handler error to propagate")
	}
	entry := rec.last()
	if entry.Action != "create" {
		t.Errorf("expected create, got %s", entry.Action)
	}
	if entry.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 recorded, got %d", entry.StatusCode)
	}
}

func TestAudit_PlainErrorRecordedAs500(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodGet, "/api/v1/client/bulletins")

	_ = Audit(zerolog.New(os.Stderr), rec)(func(c echo.Context) error {
		return errors.New("boom")
	})(c)

	if rec.last().StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.last().StatusCode)
	}
}

func TestAudit_SkipsNonAPIPaths(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodGet, "/health")

	if err := Audit(zerolog.New(os.Stderr), rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected no entries for /health, got %d", rec.count())
	}
}

func TestAudit_RecorderError_DoesNotBreakRequest(t *testing.T) {
	rec := &mockRecorder{err: errors.New("disk full")}
	c, recorder := newTestContext(http.MethodGet, "/api/v1/client/bulletins")

	if err := Audit(zerolog.New(os.Stderr), rec)(okHandler)(c); err != nil {
		t.Fatalf("recorder failure must not fail the request: %v", err)
	}
	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", recorder.Code)
	}
}

func TestAuditRecorderFunc(t *testing.T) {
	var got AuditEntry
	fn := AuditRecorderFunc(func(e AuditEntry) error {
		got = e
		return nil
	})
	c, _ := newTestContext(http.MethodPut, "/api/v1/insurer/plans")

	_ = Audit(zerolog.New(os.Stderr), fn)(okHandler)(c)
	if got.Action != "update" || got.Resource != "plans" {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestSplitAuditPath(t *testing.T) {
	tests := []struct {
		path, area, resource string
	}{
		{"/api/v1/insurer/estimations", "insurer", "estimations"},
		{"/api/v1/insurer/clients/abc/bulletins", "insurer", "clients"},
		{"/api/v1/doctor/bulletins", "doctor", "bulletins"},
		{"/api/v1/admin", "admin", ""},
		{"/api/v1/", "unknown", ""},
	}
	for _, tt := range tests {
		area, resource := splitAuditPath(tt.path)
		if area != tt.area || resource != tt.resource {
			t.Errorf("splitAuditPath(%q) = %q, %q; want %q, %q", tt.path, area, resource, tt.area, tt.resource)
		}
	}
}

func TestHttpMethodToAction(t *testing.T) {
	tests := map[string]string{
		http.MethodGet:    "read",
		http.MethodHead:   "read",
		http.MethodPost:   "create",
		http.MethodPut:    "update",
		http.MethodPatch:  "update",
		http.MethodDelete: "delete",
	}
	for method, want := range tests {
		if got := httpMethodToAction(method); got != want {
			t.Errorf("httpMethodToAction(%s) = %s, want %s", method, got, want)
		}
	}
}
