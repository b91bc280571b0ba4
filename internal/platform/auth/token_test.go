package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestIssueToken_RoundTrip(t *testing.T) {
	tokenStr, err := IssueToken(testSigningKey, TokenRequest{
		Subject:  "user-7",
		Roles:    []string{RoleDoctor},
		Issuer:   "truecare",
		Audience: "truecare-api",
		TTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	c := e.NewContext(req, httptest.NewRecorder())

	var gotUser string
	handler := func(c echo.Context) error {
		gotUser = UserIDFromContext(c.Request().Context())
		return nil
	}
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "truecare", Audience: "truecare-api"}
	if err := JWTMiddleware(cfg)(handler)(c); err != nil {
		t.Fatalf("middleware rejected issued token: %v", err)
	}
	if gotUser != "user-7" {
		t.Errorf("expected user-7, got %q", gotUser)
	}
}

func TestIssueToken_Validation(t *testing.T) {
	if _, err := IssueToken(nil, TokenRequest{Subject: "u"}); err == nil {
		t.Error("expected error without signing key")
	}
	if _, err := IssueToken(testSigningKey, TokenRequest{}); err == nil {
		t.Error("expected error without subject")
	}
}
