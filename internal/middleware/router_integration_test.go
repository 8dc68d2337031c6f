package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/horo/internal/auth"
	"github.com/hitoshi/horo/internal/model"
)

// newProtectedRouter はSession -> CSRF のミドルウェアチェーンを持つchi.Routerを返す。
func newProtectedRouter(t *testing.T) http.Handler {
	t.Helper()
	csrfConfig := CSRFConfig{}

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(NewSecurityHeadersMiddleware())
	r.Use(NewLoggingMiddleware(slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))))
	r.Use(NewCSRFMiddleware(csrfConfig))
	r.Get("/csrf-token", NewCSRFTokenHandler(csrfConfig).ServeHTTP)
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(newVerifier("router-test-session", &model.User{ID: "user-router-test"})))
		r.Post("/fortune/profile", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			WriteJSON(w, http.StatusOK, map[string]string{"user_id": userID})
		})
	})
	return r
}

func TestRouterIntegration_ProtectedRoute_WithMiddlewareChain(t *testing.T) {
	r := newProtectedRouter(t)

	// CSRFトークン取得
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/csrf-token", nil))
	var tokenBody struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&tokenBody); err != nil || tokenBody.Token == "" {
		t.Fatalf("failed to get csrf token: %v", err)
	}

	tests := []struct {
		name       string
		session    string
		csrf       bool
		wantStatus int
	}{
		{"セッションとCSRFあり", "router-test-session", true, http.StatusOK},
		{"CSRFなし", "router-test-session", false, http.StatusForbidden},
		{"セッションなし", "", true, http.StatusUnauthorized},
		{"無効なセッション", "other", true, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/fortune/profile", nil)
			if tt.session != "" {
				req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: tt.session})
			}
			if tt.csrf {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tokenBody.Token})
				req.Header.Set(csrfHeaderName, tokenBody.Token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("security headers missing")
			}
			if tt.wantStatus == http.StatusOK {
				var body map[string]string
				_ = json.NewDecoder(w.Body).Decode(&body)
				if body["user_id"] != "user-router-test" {
					t.Errorf("user_id = %q", body["user_id"])
				}
			}
		})
	}
}

func TestRouterIntegration_PanicRecovered(t *testing.T) {
	r := newProtectedRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}
