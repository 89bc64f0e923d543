package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/timmy/nutrilens/internal/logger"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newAuthEngine(cfg AuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(LoggerMiddleware())
	r.Use(Auth(cfg))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user":       UserID(c),
			"log_user":   logger.FieldString(c.Request.Context(), logger.FieldUserID),
			"request_id": logger.GetRequestID(c.Request.Context()),
		})
	})
	return r
}

func TestAuth(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name     string
		cfg      AuthConfig
		header   string
		wantCode int
	}{
		{name: "disabled uses default user", cfg: AuthConfig{DefaultUserID: "local-user"}, wantCode: http.StatusOK},
		{name: "missing header", cfg: AuthConfig{Enabled: true, Secret: testSecret}, wantCode: http.StatusUnauthorized},
		{name: "valid subject", cfg: AuthConfig{Enabled: true, Secret: testSecret}, header: "Bearer " + signToken(t, jwt.MapClaims{"sub": "u-1", "exp": exp}, testSecret), wantCode: http.StatusOK},
		{name: "userId claim", cfg: AuthConfig{Enabled: true, Secret: testSecret}, header: "Bearer " + signToken(t, jwt.MapClaims{"userId": "u-2", "exp": exp}, testSecret), wantCode: http.StatusOK},
		{name: "wrong secret", cfg: AuthConfig{Enabled: true, Secret: testSecret}, header: "Bearer " + signToken(t, jwt.MapClaims{"sub": "u-1", "exp": exp}, "other"), wantCode: http.StatusUnauthorized},
		{name: "expired", cfg: AuthConfig{Enabled: true, Secret: testSecret}, header: "Bearer " + signToken(t, jwt.MapClaims{"sub": "u-1", "exp": time.Now().Add(-time.Hour).Unix()}, testSecret), wantCode: http.StatusUnauthorized},
		{name: "no expiry", cfg: AuthConfig{Enabled: true, Secret: testSecret}, header: "Bearer " + signToken(t, jwt.MapClaims{"sub": "u-1"}, testSecret), wantCode: http.StatusUnauthorized},
		{name: "wrong issuer", cfg: AuthConfig{Enabled: true, Secret: testSecret, Issuer: "nutrilens"}, header: "Bearer " + signToken(t, jwt.MapClaims{"sub": "u-1", "exp": exp, "iss": "evil"}, testSecret), wantCode: http.StatusUnauthorized},
		{name: "no subject", cfg: AuthConfig{Enabled: true, Secret: testSecret}, header: "Bearer " + signToken(t, jwt.MapClaims{"exp": exp}, testSecret), wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			newAuthEngine(tt.cfg).ServeHTTP(w, req)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestLoggerMiddlewareRequestID(t *testing.T) {
	r := newAuthEngine(AuthConfig{DefaultUserID: "local-user"})

	incoming := "3f2504e0-4f89-11d3-9a0c-0305e82c3301"
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(RequestIDHeader, incoming)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != incoming {
		t.Errorf("request id = %q, want incoming %q", got, incoming)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid\nforged")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got == "" || got == "not-a-uuid\nforged" {
		t.Errorf("request id = %q, want a generated one", got)
	}
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name       string
		cfg        CORSConfig
		origin     string
		method     string
		wantOrigin string
		wantStatus int
	}{
		{name: "allow all", cfg: CORSConfig{AllowAllOrigins: true}, origin: "https://a.test", method: http.MethodGet, wantOrigin: "*", wantStatus: http.StatusOK},
		{name: "listed", cfg: CORSConfig{AllowedOrigins: []string{"https://app.test"}}, origin: "https://APP.test", method: http.MethodGet, wantOrigin: "https://APP.test", wantStatus: http.StatusOK},
		{name: "not listed", cfg: CORSConfig{AllowedOrigins: []string{"https://app.test"}}, origin: "https://evil.test", method: http.MethodGet, wantOrigin: "", wantStatus: http.StatusOK},
		{name: "preflight", cfg: CORSConfig{AllowAllOrigins: true}, origin: "https://a.test", method: http.MethodOptions, wantOrigin: "*", wantStatus: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(CORS(tt.cfg))
			r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(tt.method, "/x", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("allow origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	exp := time.Now().Add(time.Hour).Unix()
	userToken := signToken(t, jwt.MapClaims{"sub": "u-1", "exp": exp}, testSecret)
	adminToken := signToken(t, jwt.MapClaims{"sub": "ops", "exp": exp, "role": "admin"}, testSecret)
	rolesToken := signToken(t, jwt.MapClaims{"sub": "ops", "exp": exp, "roles": []string{"editor", "admin"}}, testSecret)

	tests := []struct {
		name     string
		admin    AdminConfig
		bearer   string
		adminHdr string
		wantCode int
	}{
		{name: "plain user token", admin: AdminConfig{Role: "admin"}, bearer: userToken, wantCode: http.StatusForbidden},
		{name: "role claim", admin: AdminConfig{Role: "admin"}, bearer: adminToken, wantCode: http.StatusOK},
		{name: "roles list claim", admin: AdminConfig{Role: "admin"}, bearer: rolesToken, wantCode: http.StatusOK},
		{name: "admin token header", admin: AdminConfig{Token: "ops-token"}, bearer: userToken, adminHdr: "ops-token", wantCode: http.StatusOK},
		{name: "wrong admin token", admin: AdminConfig{Token: "ops-token"}, bearer: userToken, adminHdr: "guess", wantCode: http.StatusForbidden},
		{name: "role not granted by token config", admin: AdminConfig{Token: "ops-token"}, bearer: adminToken, wantCode: http.StatusForbidden},
		{name: "no bearer", admin: AdminConfig{Role: "admin"}, wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(Auth(AuthConfig{Enabled: true, Secret: testSecret}))
			r.Use(RequireAdmin(tt.admin))
			r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			if tt.adminHdr != "" {
				req.Header.Set(AdminTokenHeader, tt.adminHdr)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestAdminConfigConfigured(t *testing.T) {
	if (AdminConfig{}).Configured() {
		t.Error("empty AdminConfig should not be configured")
	}
	if !(AdminConfig{Role: "admin"}).Configured() || !(AdminConfig{Token: "t"}).Configured() {
		t.Error("role or token should configure admin access")
	}
}
