package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulsehub/internal/model"
	"pulsehub/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type fakeClients map[string]*model.APIClient

func (f fakeClients) Lookup(_ context.Context, apiKey string) (*model.APIClient, error) {
	return f[apiKey], nil
}

func TestAPIKeyMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyMiddleware(fakeClients{"k1": {AppID: "app", APIKey: "k1", Prefix: "app."}}))
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ClientPrefixKey))
	})

	cases := []struct {
		key  string
		code int
	}{
		{"", http.StatusUnauthorized},
		{"nope", http.StatusForbidden},
		{"k1", http.StatusOK},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		if tc.key != "" {
			req.Header.Set("X-Pulse-Key", tc.key)
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.code {
			t.Errorf("key %q: expected %d, got %d", tc.key, tc.code, w.Code)
		}
		if tc.code == http.StatusOK && w.Body.String() != "app." {
			t.Errorf("expected prefix app., got %q", w.Body.String())
		}
	}
}

func TestJWTMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, service.UserClaims{
		UserID:   "1",
		Username: "ops",
		Role:     "admin",
		Type:     service.TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    service.Issuer,
		},
	}).SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWTMiddleware(secret, false))
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, service.GetOperator(c.Request.Context()))
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test?token="+token, nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "ops" {
		t.Errorf("expected 200 ops, got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token+"x")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a tampered token, got %d", w.Code)
	}

	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, service.UserClaims{
		UserID:   "1",
		Username: "ops",
		Role:     "admin",
		Type:     service.TokenRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			Issuer:    service.Issuer,
		},
	}).SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a refresh token, got %d", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()
	viewer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, service.UserClaims{
		UserID:   "2",
		Username: "viewer",
		Role:     "viewer",
		Type:     service.TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			Issuer:    service.Issuer,
		},
	}).SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWTMiddleware(secret, true), RequireAdmin())
	r.GET("/admin", func(c *gin.Context) {
		c.String(http.StatusOK, service.GetOperator(c.Request.Context()))
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+viewer)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("viewer: expected 403, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/admin", nil)
	req.Header.Set("X-Dev-Pass", "true")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "dev-operator" {
		t.Errorf("dev pass: expected 200 dev-operator, got %d %q", w.Code, w.Body.String())
	}
}
