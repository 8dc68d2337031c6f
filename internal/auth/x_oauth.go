package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/horo/internal/model"
)

const (
	defaultXAuthURL     = "https://twitter.com/i/oauth2/authorize"
	defaultXTokenURL    = "https://api.twitter.com/2/oauth2/token"
	defaultXUserInfoURL = "https://api.twitter.com/2/users/me"
)

// XOAuthConfig はX OAuth 2.0プロバイダーの設定。
type XOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	HTTPClient   *http.Client

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// XOAuthProvider はX(旧Twitter)のOAuth 2.0による認証を提供する。
// XはPKCEが必須で、コンフィデンシャルクライアントはBasic認証でトークンを要求する。
type XOAuthProvider struct {
	config XOAuthConfig
	client *http.Client
}

// NewXOAuthProvider はXOAuthProviderを生成する。
func NewXOAuthProvider(config XOAuthConfig) *XOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultXAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultXTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultXUserInfoURL
	}
	return &XOAuthProvider{config: config, client: clientOrDefault(config.HTTPClient)}
}

// Name はプロバイダー名を返す。
func (p *XOAuthProvider) Name() model.Provider {
	return model.ProviderX
}

// AuthCodeURL はXの認可URLを生成する。
func (p *XOAuthProvider) AuthCodeURL(state, codeChallenge string) string {
	params := url.Values{
		"client_id":             {p.config.ClientID},
		"redirect_uri":          {p.config.RedirectURL},
		"response_type":         {"code"},
		"scope":                 {"users.read tweet.read offline.access"},
		"state":                 {state},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {"S256"},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

type xTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

type xUserResponse struct {
	Data struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Username        string `json:"username"`
		ProfileImageURL string `json:"profile_image_url"`
	} `json:"data"`
}

// Exchange は認可コードをアクセストークンに交換する。
func (p *XOAuthProvider) Exchange(ctx context.Context, code, codeVerifier string) (*TokenSet, error) {
	data := url.Values{
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {p.config.RedirectURL},
		"code_verifier": {codeVerifier},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(p.config.ClientID), url.QueryEscape(p.config.ClientSecret))

	var tokenResp xTokenResponse
	if err := doJSON(p.client, req, &tokenResp); err != nil {
		return nil, fmt.Errorf("x token exchange failed: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &TokenSet{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresIn:    time.Duration(tokenResp.ExpiresIn) * time.Second,
	}, nil
}

// FetchProfile は/2/users/meからプロフィールを取得する。
// Xはメールアドレスを返さないため、名前が空ならユーザー名を使う。
func (p *XOAuthProvider) FetchProfile(ctx context.Context, accessToken string) (*ExternalProfile, error) {
	u, err := url.Parse(p.config.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("invalid user info URL: %w", err)
	}
	q := u.Query()
	q.Set("user.fields", "profile_image_url")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var info xUserResponse
	if err := doJSON(p.client, req, &info); err != nil {
		return nil, fmt.Errorf("x user info fetch failed: %w", err)
	}
	if info.Data.ID == "" {
		return nil, fmt.Errorf("empty id in user info response")
	}

	name := info.Data.Name
	if name == "" {
		name = info.Data.Username
	}
	return &ExternalProfile{
		Subject:   info.Data.ID,
		Name:      name,
		AvatarURL: info.Data.ProfileImageURL,
	}, nil
}

// compile-time interface check
var _ OAuthProvider = (*XOAuthProvider)(nil)
