// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/horo/internal/auth"
	"github.com/hitoshi/horo/internal/metrics"
	"github.com/hitoshi/horo/internal/middleware"
	"github.com/hitoshi/horo/internal/model"
)

const (
	oauthStateCookie    = "oauth_state"
	oauthVerifierCookie = "oauth_verifier"
	oauthCookiePath     = "/auth"

	// DefaultReturnTo はreturn_to未指定時のログイン後の遷移先。
	DefaultReturnTo = "/dashboard"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	BeginLogin(providerID, returnTo string) (*auth.LoginRequest, error)
	CompleteLogin(ctx context.Context, cb auth.Callback) (*auth.LoginOutcome, error)
	CurrentUser(ctx context.Context, token string) (*model.User, error)
	Logout(ctx context.Context, token string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL  string
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	metrics metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, collector metrics.MetricsCollector) *AuthHandler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &AuthHandler{
		service: service,
		config:  config,
		metrics: collector,
	}
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Provider  string `json:"provider"`
	AvatarURL string `json:"avatarUrl"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Provider:  string(u.Provider),
		AvatarURL: u.AvatarURL,
	}
}

// Login はOAuthフローを開始する。
// GET /auth/login?provider=google|x&return_to=/path
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	providerID := r.URL.Query().Get("provider")
	if _, ok := model.ParseProvider(providerID); !ok {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewUnsupportedProviderError(providerID))
		return
	}

	req, err := h.service.BeginLogin(providerID, r.URL.Query().Get("return_to"))
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}

	// stateとcode_verifierを短命のCookieに保存（CSRF対策・PKCE）
	maxAge := int(auth.DefaultStateTTL / time.Second)
	http.SetCookie(w, h.oauthCookie(oauthStateCookie, req.State, maxAge))
	http.SetCookie(w, h.oauthCookie(oauthVerifierCookie, req.CodeVerifier, maxAge))

	http.Redirect(w, r, req.RedirectURL, http.StatusFound)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("code and state are required"))
		return
	}

	cb := auth.Callback{
		Code:         code,
		State:        state,
		StateCookie:  cookieValue(r, oauthStateCookie),
		CodeVerifier: cookieValue(r, oauthVerifierCookie),
	}

	// 一度使ったstateとverifierは削除する
	http.SetCookie(w, h.oauthCookie(oauthStateCookie, "", -1))
	http.SetCookie(w, h.oauthCookie(oauthVerifierCookie, "", -1))

	outcome, err := h.service.CompleteLogin(r.Context(), cb)
	if err != nil {
		slog.WarnContext(r.Context(), "oauth callback failed", slog.String("error", err.Error()))
		h.metrics.RecordLogin("unknown", metrics.ResultFailure)
		middleware.WriteServiceError(w, r, err)
		return
	}
	h.metrics.RecordLogin(string(outcome.User.Provider), metrics.ResultSuccess)

	http.SetCookie(w, outcome.Cookie.HTTPCookie())

	returnTo := outcome.ReturnTo
	if returnTo == "" {
		returnTo = DefaultReturnTo
	}
	http.Redirect(w, r, h.config.FrontendURL+returnTo, http.StatusFound)
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.ErrorContext(r.Context(), "failed to logout", slog.String("error", err.Error()))
		} else {
			h.metrics.RecordLogout()
		}
	}

	http.SetCookie(w, auth.ClearSessionCookie(auth.SessionConfig{
		Secure: h.config.CookieSecure,
		Domain: h.config.CookieDomain,
	}))

	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	token := middleware.SessionToken(r)
	if token == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	user, err := h.service.CurrentUser(r.Context(), token)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]userResponse{"user": toUserResponse(user)})
}

func (h *AuthHandler) oauthCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     oauthCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
