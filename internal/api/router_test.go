package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/timmy/nutrilens/internal/api/middleware"
	"github.com/timmy/nutrilens/internal/service"
	"github.com/timmy/nutrilens/internal/source"
)

const testSecret = "s3cret"

type okPinger struct{}

func (okPinger) Ping(ctx context.Context) error { return nil }

type noopImporter struct{}

func (noopImporter) ImportFromSource(ctx context.Context, src source.Source, limit int) (*service.ImportStats, error) {
	return &service.ImportStats{}, nil
}

func noSources(id string) (source.Source, bool) { return nil, false }

func bearer(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func TestSetupRouter(t *testing.T) {
	r := SetupRouter(RouterConfig{
		Mode: "test",
		Auth: middleware.AuthConfig{Enabled: true, Secret: testSecret},
		DB:   okPinger{},
	})

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{name: "health is public", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "meals need a token", method: http.MethodGet, path: "/api/v1/meals", want: http.StatusUnauthorized},
		{name: "analyze needs a token", method: http.MethodPost, path: "/api/v1/meals/analyze-text", want: http.StatusUnauthorized},
		{name: "admin routes off without importer", method: http.MethodPost, path: "/api/v1/admin/imports", want: http.StatusNotFound},
		{name: "unknown route", method: http.MethodGet, path: "/nope", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, w.Code, tt.want)
			}
		})
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	tests := []struct {
		name   string
		admin  middleware.AdminConfig
		claims jwt.MapClaims
		want   int
	}{
		{name: "unconfigured admin keeps routes off", claims: jwt.MapClaims{"sub": "ops", "role": "admin"}, want: http.StatusNotFound},
		{name: "user token", admin: middleware.AdminConfig{Role: "admin"}, claims: jwt.MapClaims{"sub": "u-1"}, want: http.StatusForbidden},
		{name: "admin token", admin: middleware.AdminConfig{Role: "admin"}, claims: jwt.MapClaims{"sub": "ops", "role": "admin"}, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := SetupRouter(RouterConfig{
				Mode:     "test",
				Auth:     middleware.AuthConfig{Enabled: true, Secret: testSecret},
				Admin:    tt.admin,
				DB:       okPinger{},
				Importer: noopImporter{},
				Sources:  noSources,
			})
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/imports/status", nil)
			req.Header.Set("Authorization", bearer(t, tt.claims))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}
