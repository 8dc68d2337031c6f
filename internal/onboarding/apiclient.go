package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/hitoshi/horo/internal/model"
)

const (
	defaultClientTimeout = 30 * time.Second
	maxResponseBodySize  = 1 << 20

	csrfHeaderName    = "X-CSRF-Token"
	sessionCookieName = "session"
)

// APIClient はhoroサーバーのHTTP APIを呼び出すクライアント。
// Cookie jarでセッションとCSRFトークンのCookieを保持し、Flowの依存として使用する。
type APIClient struct {
	baseURL *url.URL
	client  *http.Client

	mu        sync.Mutex
	csrfToken string
}

var (
	_ TeaserSource   = (*APIClient)(nil)
	_ IdentitySource = (*APIClient)(nil)
	_ ProfileSaver   = (*APIClient)(nil)
	_ InviteConsumer = (*APIClient)(nil)
)

// NewAPIClient は新しいAPIClientを生成する。
// httpClientがnilの場合はデフォルトのクライアントを使用する。渡されたクライアントは変更しない。
func NewAPIClient(baseURL string, httpClient *http.Client) (*APIClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base URL scheme: %q", u.Scheme)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	var c http.Client
	if httpClient != nil {
		c = *httpClient
	} else {
		c.Timeout = defaultClientTimeout
	}
	c.Jar = jar

	return &APIClient{baseURL: u, client: &c}, nil
}

// AttachSession はセッションCookieをjarに設定する。
// ブラウザ外でOAuthを完了した場合に、発行済みのセッショントークンを引き継ぐ。
func (c *APIClient) AttachSession(token string) {
	c.client.Jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:  sessionCookieName,
		Value: token,
		Path:  "/",
	}})
}

// ResponseError はAPIのエラーレスポンスを表す。
// Unwrapでステータスとコードに対応するmodelのエラーを返す。
type ResponseError struct {
	Status int
	Body   model.APIError
	kind   error
}

func (e *ResponseError) Error() string {
	if e.Body.Code == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Body.Error())
}

func (e *ResponseError) Unwrap() error { return e.kind }

type apiErrorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

type birthTimeBody struct {
	Period      string `json:"period"`
	ChineseHour int    `json:"chineseHour"`
	IsUnknown   bool   `json:"isUnknown"`
}

type profileBody struct {
	Name      string         `json:"name"`
	BirthDate string         `json:"birthDate"`
	Gender    string         `json:"gender,omitempty"`
	BirthTime *birthTimeBody `json:"birthTime,omitempty"`
}

type teaserBody struct {
	ElementType  string `json:"elementType"`
	Personality  string `json:"personality"`
	TodaySnippet string `json:"todaySnippet"`
	LuckyColor   string `json:"luckyColor"`
	LuckyNumber  int    `json:"luckyNumber"`
}

type userBody struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Provider  string `json:"provider"`
	AvatarURL string `json:"avatarUrl"`
}

// InviteInfo は招待リンクの確認結果。
type InviteInfo struct {
	InviterName string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Teaser は回答から簡易鑑定を取得する。
func (c *APIClient) Teaser(ctx context.Context, profile model.BirthProfile) (*model.Teaser, error) {
	var out teaserBody
	if err := c.do(ctx, http.MethodPost, "/fortune/teaser", toProfileBody(profile), &out); err != nil {
		return nil, fmt.Errorf("failed to request teaser: %w", err)
	}
	return &model.Teaser{
		ElementType:  out.ElementType,
		Personality:  out.Personality,
		TodaySnippet: out.TodaySnippet,
		LuckyColor:   out.LuckyColor,
		LuckyNumber:  out.LuckyNumber,
	}, nil
}

// CurrentUser はセッションのユーザーを取得する。
func (c *APIClient) CurrentUser(ctx context.Context) (*model.User, error) {
	var out struct {
		User userBody `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return &model.User{
		ID:        out.User.ID,
		Name:      out.User.Name,
		Email:     out.User.Email,
		Provider:  model.Provider(out.User.Provider),
		AvatarURL: out.User.AvatarURL,
	}, nil
}

// SaveProfile は回答をプロフィールとして保存し、プロフィールIDを返す。
func (c *APIClient) SaveProfile(ctx context.Context, profile model.BirthProfile) (string, error) {
	var out struct {
		Success   bool   `json:"success"`
		ProfileID string `json:"profileId"`
	}
	if err := c.do(ctx, http.MethodPost, "/fortune/profile", toProfileBody(profile), &out); err != nil {
		return "", fmt.Errorf("failed to save profile: %w", err)
	}
	return out.ProfileID, nil
}

// ResolveInvite は招待リンクの内容を確認する。
func (c *APIClient) ResolveInvite(ctx context.Context, token string) (*InviteInfo, error) {
	var out struct {
		InviterName string    `json:"inviterName"`
		CreatedAt   time.Time `json:"createdAt"`
		ExpiresAt   time.Time `json:"expiresAt"`
	}
	if err := c.do(ctx, http.MethodGet, "/invite/"+url.PathEscape(token), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to resolve invite: %w", err)
	}
	return &InviteInfo{InviterName: out.InviterName, CreatedAt: out.CreatedAt, ExpiresAt: out.ExpiresAt}, nil
}

// ConsumeInvite は招待を使用し、招待者のIDを返す。
func (c *APIClient) ConsumeInvite(ctx context.Context, token string) (string, error) {
	var out struct {
		Success    bool   `json:"success"`
		InviterID  string `json:"inviterId"`
		RedirectTo string `json:"redirectTo"`
	}
	if err := c.do(ctx, http.MethodPost, "/invite/"+url.PathEscape(token)+"/use", nil, &out); err != nil {
		return "", fmt.Errorf("failed to consume invite: %w", err)
	}
	return out.InviterID, nil
}

// Logout はセッションを破棄する。
func (c *APIClient) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

func toProfileBody(p model.BirthProfile) profileBody {
	body := profileBody{
		Name:      p.Name,
		BirthDate: p.BirthDate,
		Gender:    string(p.Gender),
	}
	if p.BirthTime != nil {
		body.BirthTime = &birthTimeBody{
			Period:      p.BirthTime.Period,
			ChineseHour: p.BirthTime.ChineseHour,
			IsUnknown:   p.BirthTime.Unknown,
		}
	}
	return body
}

// csrf はCSRFトークンを返す。未取得の場合はサーバーから取得する。
func (c *APIClient) csrf(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.csrfToken
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := c.send(ctx, http.MethodGet, "/csrf-token", nil, "", &out); err != nil {
		return "", fmt.Errorf("failed to fetch csrf token: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("failed to fetch csrf token: empty token")
	}

	c.mu.Lock()
	c.csrfToken = out.Token
	c.mu.Unlock()
	return out.Token, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	if method == http.MethodGet || method == http.MethodHead {
		return c.send(ctx, method, path, in, "", out)
	}
	token, err := c.csrf(ctx)
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, in, token, out)
}

func (c *APIClient) send(ctx context.Context, method, path string, in any, csrfToken string, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if csrfToken != "" {
		req.Header.Set(csrfHeaderName, csrfToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s %s timed out: %w", method, path, errors.Join(model.ErrUpstreamFailure, err))
		}
		return fmt.Errorf("%s %s: %w", method, path, errors.Join(model.ErrUpstreamFailure, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", errors.Join(model.ErrUpstreamFailure, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newResponseError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", errors.Join(model.ErrUpstreamFailure, err))
	}
	return nil
}

func newResponseError(status int, data []byte) *ResponseError {
	var body apiErrorBody
	// 本文がJSONでない場合（CSRF拒否など）はステータスのみで判定する
	_ = json.Unmarshal(data, &body)

	e := &ResponseError{
		Status: status,
		Body: model.APIError{
			Code:     body.Code,
			Message:  body.Message,
			Category: body.Category,
			Action:   body.Action,
		},
	}
	e.kind = errorForCode(body.Code)
	if e.kind == nil {
		e.kind = errorForStatus(status)
	}
	return e
}

func errorForCode(code string) error {
	switch code {
	case model.ErrCodeInviteNotFound, model.ErrCodeInviteUnavailable:
		return model.ErrInviteNotFound
	case model.ErrCodeInviteExpired:
		return model.ErrInviteExpired
	case model.ErrCodeInviteUsed:
		return model.ErrInviteAlreadyConsumed
	case model.ErrCodeSelfInvite:
		return model.ErrSelfInvite
	case model.ErrCodeUserNotFound:
		return model.ErrUserNotFound
	case model.ErrCodeUpstreamFailure:
		return model.ErrUpstreamFailure
	case model.ErrCodeAuthFailed:
		return model.ErrExchangeFailed
	case model.ErrCodeUnauthenticated:
		return model.ErrUnauthenticated
	default:
		return nil
	}
}

func errorForStatus(status int) error {
	switch {
	case status == http.StatusBadRequest, status == http.StatusForbidden:
		return model.ErrInvalidRequest
	case status == http.StatusUnauthorized:
		return model.ErrUnauthenticated
	case status == http.StatusNotFound:
		return model.ErrNotFound
	case status == http.StatusGone:
		return model.ErrInviteExpired
	case status == http.StatusConflict:
		return model.ErrConflict
	case status >= 500 && status != http.StatusInternalServerError:
		return model.ErrUpstreamFailure
	default:
		return model.ErrInternal
	}
}
