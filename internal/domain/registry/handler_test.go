package registry_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medyassinekhlif/TrueCare/internal/domain/registry"
	"github.com/medyassinekhlif/TrueCare/internal/domain/registry/registrytest"
	"github.com/medyassinekhlif/TrueCare/internal/platform/auth"
)

func newTestHandler() (*registry.Handler, *registrytest.Store, *echo.Echo) {
	svc, store := newTestService()
	return registry.NewHandler(svc), store, echo.New()
}

func newRequest(e *echo.Echo, method, body, userID, role string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if userID != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), userID, []string{role}))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func expectHTTPStatus(t *testing.T, err error, code int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError with %d, got %v", code, err)
	}
	if he.Code != code {
		t.Errorf("expected status %d, got %d (%v)", code, he.Code, he.Message)
	}
}

const enrollmentBody = `{"email":"amira@example.com","phoneNumber":"22123456","name":"Amira",
	"birthDate":"1988-04-12","nationalId":"09876543","job":"librarian",
	"health":{"smoker":false,"exercise":"Often"},"plan":{"range":{"min":70,"max":85}}}`

func TestHandler_AddClient(t *testing.T) {
	h, store, e := newTestHandler()
	ins := store.AddInsurer("ins@example.com", true)

	c, rec := newRequest(e, http.MethodPost, enrollmentBody, ins.UserID.String(), auth.RoleInsurer)
	if err := h.AddClient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"nationalId":"09876543"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_AddClient_Unverified(t *testing.T) {
	h, store, e := newTestHandler()
	ins := store.AddInsurer("ins@example.com", false)

	c, _ := newRequest(e, http.MethodPost, enrollmentBody, ins.UserID.String(), auth.RoleInsurer)
	expectHTTPStatus(t, h.AddClient(c), http.StatusForbidden)
}

func TestHandler_AddClient_Conflict(t *testing.T) {
	h, store, e := newTestHandler()
	ins := store.AddInsurer("ins@example.com", true)

	c, _ := newRequest(e, http.MethodPost, enrollmentBody, ins.UserID.String(), auth.RoleInsurer)
	if err := h.AddClient(c); err != nil {
		t.Fatalf("first enrollment: %v", err)
	}
	c, _ = newRequest(e, http.MethodPost, enrollmentBody, ins.UserID.String(), auth.RoleInsurer)
	expectHTTPStatus(t, h.AddClient(c), http.StatusConflict)
}

func TestHandler_AddClient_Validation(t *testing.T) {
	h, store, e := newTestHandler()
	ins := store.AddInsurer("ins@example.com", true)
	body := strings.Replace(enrollmentBody, `"max":85`, `"max":150`, 1)

	c, _ := newRequest(e, http.MethodPost, body, ins.UserID.String(), auth.RoleInsurer)
	expectHTTPStatus(t, h.AddClient(c), http.StatusBadRequest)
}

func TestHandler_GetClient(t *testing.T) {
	h, store, e := newTestHandler()
	ins := store.AddInsurer("ins@example.com", true)
	client := store.AddClient(ins, "Amira", "amira@example.com")

	c, rec := newRequest(e, http.MethodGet, "", ins.UserID.String(), auth.RoleInsurer)
	c.SetParamNames("clientId")
	c.SetParamValues(client.ID.String())
	if err := h.GetClient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, _ = newRequest(e, http.MethodGet, "", ins.UserID.String(), auth.RoleInsurer)
	c.SetParamNames("clientId")
	c.SetParamValues("not-a-uuid")
	expectHTTPStatus(t, h.GetClient(c), http.StatusBadRequest)

	c, _ = newRequest(e, http.MethodGet, "", ins.UserID.String(), auth.RoleInsurer)
	c.SetParamNames("clientId")
	c.SetParamValues(uuid.NewString())
	expectHTTPStatus(t, h.GetClient(c), http.StatusNotFound)
}

func TestHandler_ListClientBulletins_Paginated(t *testing.T) {
	h, store, e := newTestHandler()
	ins := store.AddInsurer("ins@example.com", true)
	client := store.AddClient(ins, "Amira", "amira@example.com")
	for i := 0; i < 3; i++ {
		store.AddBulletin(nil, client, float64(100*(i+1)))
	}

	c, rec := newRequest(e, http.MethodGet, "", ins.UserID.String(), auth.RoleInsurer)
	c.Request().URL.RawQuery = "limit=2"
	c.SetParamNames("clientId")
	c.SetParamValues(client.ID.String())
	if err := h.ListClientBulletins(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"total":3`) || !strings.Contains(body, `"hasMore":true`) {
		t.Errorf("unexpected body %s", body)
	}
}

func TestHandler_VerifyInsurer(t *testing.T) {
	h, store, e := newTestHandler()
	ins := store.AddInsurer("ins@example.com", false)

	c, rec := newRequest(e, http.MethodPost, "", auth.DevUserID, auth.RoleAdmin)
	c.SetParamNames("insurerId")
	c.SetParamValues(ins.ID.String())
	if err := h.VerifyInsurer(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"verified":true`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_CreateBulletin_UnknownClient(t *testing.T) {
	h, store, e := newTestHandler()
	doc := store.AddDoctor("doc@example.com")
	body := `{"clientEmail":"ghost@example.com","treatmentDetails":{"diagnosis":"flu","caseSeverity":1},"financialInfo":{"totalAmountPaid":80}}`

	c, _ := newRequest(e, http.MethodPost, body, doc.UserID.String(), auth.RoleDoctor)
	expectHTTPStatus(t, h.CreateBulletin(c), http.StatusNotFound)
}

func TestHandler_GetInsuranceDetails(t *testing.T) {
	h, store, e := newTestHandler()
	ins := store.AddInsurer("ins@example.com", true)
	client := store.AddClient(ins, "Amira", "amira@example.com")

	c, rec := newRequest(e, http.MethodGet, "", client.UserID.String(), auth.RoleClient)
	if err := h.GetInsuranceDetails(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), ins.CompanyName) {
		t.Errorf("expected company name in %s", rec.Body.String())
	}
}

func TestHandler_RegisterRoutes_RoleGuard(t *testing.T) {
	h, _, e := newTestHandler()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(context.Background(), uuid.NewString(), []string{auth.RoleDoctor})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/insurer/clients", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for doctor on insurer route, got %d", rec.Code)
	}
}
