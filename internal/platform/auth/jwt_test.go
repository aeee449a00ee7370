package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, roles []string) string {
	t.Helper()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func invoke(t *testing.T, mw []echo.MiddlewareFunc, token string) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler(c)
}

func TestJWTWithAdminRolePassesRequireRole(t *testing.T) {
	mw := []echo.MiddlewareFunc{JWTMiddleware(testSecret), RequireRole("security")}
	if err := invoke(t, mw, signToken(t, []string{"admin"})); err != nil {
		t.Fatalf("admin should pass any role check: %v", err)
	}
}

func TestRequireRoleRejectsMissingRole(t *testing.T) {
	mw := []echo.MiddlewareFunc{JWTMiddleware(testSecret), RequireRole("security")}
	err := invoke(t, mw, signToken(t, []string{"viewer"}))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestJWTRejectsBadSignature(t *testing.T) {
	claims := &Claims{Roles: []string{"admin"}}
	raw, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))

	err := invoke(t, []echo.MiddlewareFunc{JWTMiddleware(testSecret)}, raw)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestAnonymousRequestFailsRoleCheck(t *testing.T) {
	mw := []echo.MiddlewareFunc{JWTMiddleware(testSecret), RequireRole("admin")}
	err := invoke(t, mw, "")
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for anonymous request, got %v", err)
	}
}
