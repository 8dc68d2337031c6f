package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestGoogleOAuthProvider_AuthCodeURL_ContainsRequiredParams(t *testing.T) {
	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:    "test-client-id",
		RedirectURL: "http://localhost:8080/auth/callback",
	})

	loginURL := provider.AuthCodeURL("test-state-value", "test-challenge")

	tests := []struct {
		name     string
		contains string
	}{
		{"client_id", "client_id=test-client-id"},
		{"redirect_uri", "redirect_uri="},
		{"state", "state=test-state-value"},
		{"response_type", "response_type=code"},
		{"scope email", "email"},
		{"scope profile", "profile"},
		{"offline", "access_type=offline"},
		{"challenge", "code_challenge=test-challenge"},
		{"method", "code_challenge_method=S256"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !containsStr(loginURL, tt.contains) {
				t.Errorf("URL should contain %q, got %q", tt.contains, loginURL)
			}
		})
	}
}

func TestGoogleOAuthProvider_ExchangeAndFetchProfile(t *testing.T) {
	// Google Token Endpoint
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("code_verifier") != "verifier" {
			t.Errorf("code_verifier = %q", r.PostForm.Get("code_verifier"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "test-access-token",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "test-refresh-token",
		})
	}))
	defer tokenServer.Close()

	// Google UserInfo Endpoint
	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sub":     "google-sub-12345",
			"email":   "user@gmail.com",
			"name":    "Google User",
			"picture": "https://lh3.googleusercontent.com/a/p.jpg",
		})
	}))
	defer userInfoServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/auth/callback",
		TokenURL:     tokenServer.URL,
		UserInfoURL:  userInfoServer.URL,
	})

	ctx := context.Background()
	tokens, err := provider.Exchange(ctx, "test-auth-code", "verifier")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if tokens.RefreshToken != "test-refresh-token" {
		t.Errorf("refresh token = %q", tokens.RefreshToken)
	}
	if tokens.ExpiresIn != time.Hour {
		t.Errorf("ExpiresIn = %v, want 1h", tokens.ExpiresIn)
	}

	profile, err := provider.FetchProfile(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}
	if profile.Subject != "google-sub-12345" {
		t.Errorf("subject = %q, want %q", profile.Subject, "google-sub-12345")
	}
	if profile.Email != "user@gmail.com" {
		t.Errorf("email = %q, want %q", profile.Email, "user@gmail.com")
	}
	if profile.AvatarURL == "" {
		t.Error("avatar URL should be set")
	}
}

func TestGoogleOAuthProvider_Exchange_TokenError(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":             "invalid_grant",
			"error_description": "Code was already redeemed.",
		})
	}))
	defer tokenServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{TokenURL: tokenServer.URL})

	if _, err := provider.Exchange(context.Background(), "used-code", "v"); err == nil {
		t.Fatal("expected error for rejected code")
	}
}

func TestGoogleOAuthProvider_Exchange_EmptyAccessToken(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer tokenServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{TokenURL: tokenServer.URL})

	if _, err := provider.Exchange(context.Background(), "code", "v"); err == nil {
		t.Fatal("expected error for empty access token")
	}
}

func TestXOAuthProvider_AuthCodeURL(t *testing.T) {
	provider := NewXOAuthProvider(XOAuthConfig{
		ClientID:    "x-client",
		RedirectURL: "http://localhost:8080/auth/callback",
	})

	u, err := url.Parse(provider.AuthCodeURL("st", "ch"))
	if err != nil {
		t.Fatalf("invalid URL: %v", err)
	}
	q := u.Query()
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q, want S256", q.Get("code_challenge_method"))
	}
	if q.Get("scope") != "users.read tweet.read offline.access" {
		t.Errorf("scope = %q", q.Get("scope"))
	}
	if u.Host != "twitter.com" {
		t.Errorf("host = %q, want twitter.com", u.Host)
	}
}

func TestXOAuthProvider_ExchangeUsesBasicAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			user, pass, ok := r.BasicAuth()
			if !ok || user != "x-client" || pass != "x-secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			r.ParseForm()
			if r.PostForm.Get("client_secret") != "" {
				t.Error("client_secret should not be sent in the body")
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "x-access",
				"token_type":    "bearer",
				"expires_in":    7200,
				"refresh_token": "x-refresh",
			})
		case "/me":
			if r.URL.Query().Get("user.fields") != "profile_image_url" {
				t.Errorf("user.fields = %q", r.URL.Query().Get("user.fields"))
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data":{"id":"42","name":"","username":"nok_x","profile_image_url":"https://pbs.twimg.com/p.jpg"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	provider := NewXOAuthProvider(XOAuthConfig{
		ClientID:     "x-client",
		ClientSecret: "x-secret",
		TokenURL:     server.URL + "/token",
		UserInfoURL:  server.URL + "/me",
	})

	tokens, err := provider.Exchange(context.Background(), "code", "verifier")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if tokens.ExpiresIn != 2*time.Hour {
		t.Errorf("ExpiresIn = %v, want 2h", tokens.ExpiresIn)
	}

	profile, err := provider.FetchProfile(context.Background(), tokens.AccessToken)
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}
	if profile.Subject != "42" {
		t.Errorf("subject = %q, want 42", profile.Subject)
	}
	// 名前が空ならユーザー名を使う
	if profile.Name != "nok_x" {
		t.Errorf("name = %q, want nok_x", profile.Name)
	}
	if profile.Email != "" {
		t.Errorf("email = %q, want empty", profile.Email)
	}
}

func TestCodeChallengeS256(t *testing.T) {
	// RFC 7636 Appendix B
	got := CodeChallengeS256("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got != want {
		t.Errorf("CodeChallengeS256() = %q, want %q", got, want)
	}
}
