package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"DaryoAI/models"
	"DaryoAI/pkg/config"
	"DaryoAI/pkg/database"
	tokenstore "DaryoAI/pkg/token"

	"github.com/gin-gonic/gin"
)

func TestAdminTokenRoundTrip(t *testing.T) {
	config.JWTSecret = "test-secret"
	signed, issued, err := IssueAdminToken(7, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := ParseAdminToken(signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.AdminID != 7 || got.JTI != issued.JTI {
		t.Fatalf("claims = %+v, issued %+v", got, issued)
	}

	tokenstore.RevokeToken(issued.JTI, issued.ExpiresAt)
	if _, err := ParseAdminToken(signed); err != ErrTokenRevoked {
		t.Fatalf("err = %v, want revoked", err)
	}
}

func TestParseAdminTokenRejectsForeignSecret(t *testing.T) {
	config.JWTSecret = "one"
	signed, _, err := IssueAdminToken(1, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	config.JWTSecret = "two"
	if _, err := ParseAdminToken(signed); err != ErrInvalidToken {
		t.Fatalf("err = %v, want invalid", err)
	}
	if _, err := ParseAdminToken("garbage"); err != ErrInvalidToken {
		t.Fatalf("err = %v, want invalid", err)
	}
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	config.JWTSecret = "test-secret"
	signed, _, _ := IssueAdminToken(3, time.Now())

	r := gin.New()
	r.GET("/admin/me", AuthMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": CurrentAdminID(c)})
	})

	cases := []struct {
		header string
		code   int
	}{
		{"", http.StatusUnauthorized},
		{"Token abc", http.StatusUnauthorized},
		{"Bearer abc", http.StatusUnauthorized},
		{"Bearer " + signed, http.StatusOK},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.code {
			t.Errorf("header %q: code %d, want %d", tc.header, w.Code, tc.code)
		}
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, err := database.Connect(database.Config{Driver: "sqlite", DSN: ":memory:"}, true)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	active := models.APIKey{Name: "ok", IsActive: true, TokenLimit: 10}
	inactive := models.APIKey{Name: "off", IsActive: false, TokenLimit: 10}
	if err := db.Create(&active).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Create(&inactive).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	r := gin.New()
	r.Use(APIKeyMiddleware(db, "/admin"))
	r.GET("/conversation", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"key": CurrentAPIKey(c).Name})
	})
	r.GET("/admin/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := []struct {
		path, key, want string
		code            int
	}{
		{"/conversation", "", `{"error":"API key required"}`, http.StatusUnauthorized},
		{"/conversation", "nope", `{"error":"Invalid or inactive API key"}`, http.StatusForbidden},
		{"/conversation", inactive.Key, `{"error":"Invalid or inactive API key"}`, http.StatusForbidden},
		{"/conversation", active.Key, `{"key":"ok"}`, http.StatusOK},
		{"/admin/ping", "", "", http.StatusNoContent},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.key != "" {
			req.Header.Set(APIKeyHeader, tc.key)
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.code || w.Body.String() != tc.want {
			t.Errorf("%s key=%q: %d %s", tc.path, tc.key, w.Code, w.Body.String())
		}
	}
}
