package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/horo/internal/model"
	"github.com/hitoshi/horo/internal/repository"
)

// fakeIdP は認可コードを1回だけ交換できるテスト用IdP。
type fakeIdP struct {
	t      *testing.T
	server *httptest.Server

	mu         sync.Mutex
	codes      map[string]string // code -> code_challenge
	used       map[string]bool
	delay      time.Duration
	subject    string
	tokenCalls int
	issued     int
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	f := &fakeIdP{
		t:       t,
		codes:   make(map[string]string),
		used:    make(map[string]bool),
		subject: "google-sub-1",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", f.handleToken)
	mux.HandleFunc("/userinfo", f.handleUserInfo)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// issueCode は認可URLのcode_challengeに紐づく認可コードを発行する。
func (f *fakeIdP) issueCode(authURL string) string {
	f.t.Helper()
	u, err := url.Parse(authURL)
	if err != nil {
		f.t.Fatalf("invalid auth URL: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	code := fmt.Sprintf("code-%d", f.issued)
	f.codes[code] = u.Query().Get("code_challenge")
	return code
}

func (f *fakeIdP) handleToken(w http.ResponseWriter, r *http.Request) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-r.Context().Done():
			return
		}
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.tokenCalls++
	code := r.PostForm.Get("code")
	challenge, ok := f.codes[code]
	valid := ok && !f.used[code] && CodeChallengeS256(r.PostForm.Get("code_verifier")) == challenge
	if ok {
		f.used[code] = true
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !valid {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Code was already redeemed.",
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token":  "access-" + code,
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": "refresh-" + code,
	})
}

func (f *fakeIdP) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer access-") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"sub":     f.subject,
		"email":   "nok@example.com",
		"name":    "Nok",
		"picture": "https://lh3.googleusercontent.com/a/nok.jpg",
	})
}

func (f *fakeIdP) googleProvider() *GoogleOAuthProvider {
	return NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/auth/callback",
		AuthURL:      f.server.URL + "/auth",
		TokenURL:     f.server.URL + "/token",
		UserInfoURL:  f.server.URL + "/userinfo",
	})
}

// memSessionRepo はテスト用のインメモリSessionRepository。
type memSessionRepo struct {
	mu     sync.Mutex
	byHash map[string]*model.Session
	err    error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{byHash: make(map[string]*model.Session)}
}

func (m *memSessionRepo) Create(_ context.Context, s *model.Session) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byHash[s.TokenHash] = s
	return nil
}

func (m *memSessionRepo) FindActiveByTokenHash(_ context.Context, hash string, now time.Time) (*model.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byHash[hash]
	if !ok || s.IsExpired(now) {
		return nil, nil
	}
	return s, nil
}

func (m *memSessionRepo) DeleteByTokenHash(_ context.Context, hash string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byHash, hash)
	return nil
}

var _ repository.SessionRepository = (*memSessionRepo)(nil)

// mockUserFinder はUserFinderのモック。
type mockUserFinder struct {
	users map[string]*model.User
}

func (m *mockUserFinder) FindByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, model.ErrUserNotFound
}

func containsStr(s, substr string) bool {
	return strings.Contains(s, substr)
}
