package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/horo/internal/model"
	"github.com/hitoshi/horo/internal/security"
)

// DefaultProviderTimeout はIdP呼び出し全体のタイムアウト。
const DefaultProviderTimeout = 10 * time.Second

// LoginRequest はログイン開始時にハンドラーへ返す値。
// StateとCodeVerifierはハンドラーが短命のCookieに保存する。
type LoginRequest struct {
	RedirectURL  string
	State        string
	CodeVerifier string
}

// Callback はIdPからのコールバックで受け取った値。
type Callback struct {
	Code         string
	State        string
	StateCookie  string
	CodeVerifier string
}

// LoginGrant は認可コード交換の結果。
// トークンは非公開フィールドに保持し、SessionIssuer以外からは参照できない。
type LoginGrant struct {
	Provider model.Provider
	Profile  ExternalProfile
	ReturnTo string
	tokens   TokenSet
}

// Exchanger は認可コードフローの開始と完了を担当する。
type Exchanger struct {
	providers map[model.Provider]OAuthProvider
	signer    *StateSigner
	timeout   time.Duration
}

// NewExchanger はExchangerを生成する。
func NewExchanger(providers []OAuthProvider, signer *StateSigner, timeout time.Duration) *Exchanger {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	m := make(map[model.Provider]OAuthProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Exchanger{providers: m, signer: signer, timeout: timeout}
}

// BeginLogin は認可URLを組み立てる。サーバー側には何も保存しない。
func (e *Exchanger) BeginLogin(providerID, returnTo string) (*LoginRequest, error) {
	name, ok := model.ParseProvider(providerID)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported provider %q", model.ErrInvalidRequest, providerID)
	}
	provider, ok := e.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q is not configured", model.ErrInvalidRequest, providerID)
	}

	state, err := e.signer.Sign(string(name), SanitizeReturnTo(returnTo))
	if err != nil {
		return nil, err
	}
	verifier, err := NewCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	return &LoginRequest{
		RedirectURL:  provider.AuthCodeURL(state, CodeChallengeS256(verifier)),
		State:        state,
		CodeVerifier: verifier,
	}, nil
}

// CompleteLogin はstateを検証し、認可コードを交換してプロフィールを取得する。
// IdPが拒否した場合やタイムアウトした場合はErrExchangeFailedを返す。
func (e *Exchanger) CompleteLogin(ctx context.Context, cb Callback) (*LoginGrant, error) {
	if cb.Code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", model.ErrInvalidRequest)
	}
	if cb.State == "" || cb.CodeVerifier == "" {
		return nil, fmt.Errorf("%w: missing state", model.ErrInvalidRequest)
	}
	if !security.EqualTokens(cb.State, cb.StateCookie) {
		return nil, fmt.Errorf("%w: state mismatch", model.ErrInvalidRequest)
	}

	claims, err := e.signer.Verify(cb.State)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}
	provider, ok := e.providers[model.Provider(claims.Provider)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider in state", model.ErrInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tokens, err := provider.Exchange(ctx, cb.Code, cb.CodeVerifier)
	if err != nil {
		return nil, e.exchangeError(ctx, provider.Name(), "code exchange", err)
	}

	profile, err := provider.FetchProfile(ctx, tokens.AccessToken)
	if err != nil {
		return nil, e.exchangeError(ctx, provider.Name(), "profile fetch", err)
	}

	return &LoginGrant{
		Provider: provider.Name(),
		Profile:  *profile,
		ReturnTo: claims.ReturnTo,
		tokens:   *tokens,
	}, nil
}

// exchangeError はIdPのエラー詳細をログに残し、呼び出し元には種別だけを返す。
func (e *Exchanger) exchangeError(ctx context.Context, provider model.Provider, stage string, err error) error {
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
	slog.Warn("oauth provider call failed",
		slog.String("provider", string(provider)),
		slog.String("stage", stage),
		slog.Bool("timeout", timedOut),
		slog.String("error", err.Error()),
	)
	if timedOut {
		return fmt.Errorf("%s with %s timed out: %w", stage, provider, model.ErrExchangeFailed)
	}
	return fmt.Errorf("%s with %s failed: %w", stage, provider, model.ErrExchangeFailed)
}
