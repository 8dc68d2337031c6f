package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/horo/internal/model"
	"github.com/hitoshi/horo/internal/user"
)

// Reconciler は外部アイデンティティをローカルユーザーに解決するインターフェース。
type Reconciler interface {
	ResolveOrCreate(ctx context.Context, ident user.ExternalIdentity) (*model.User, error)
}

// LoginOutcome はログイン完了時にハンドラーへ返す値。
// IdPのトークンは含まない。
type LoginOutcome struct {
	User     *model.User
	Cookie   SessionCookie
	ReturnTo string
}

// Service はログインフロー全体を組み立てる。
type Service struct {
	exchanger  *Exchanger
	reconciler Reconciler
	issuer     *SessionIssuer
	verifier   *SessionVerifier
}

// NewService はServiceを生成する。
func NewService(exchanger *Exchanger, reconciler Reconciler, issuer *SessionIssuer, verifier *SessionVerifier) *Service {
	return &Service{
		exchanger:  exchanger,
		reconciler: reconciler,
		issuer:     issuer,
		verifier:   verifier,
	}
}

// BeginLogin はIdPへのリダイレクト情報を生成する。
func (s *Service) BeginLogin(providerID, returnTo string) (*LoginRequest, error) {
	return s.exchanger.BeginLogin(providerID, returnTo)
}

// CompleteLogin はコード交換 → ユーザー解決 → セッション発行 を順に行う。
func (s *Service) CompleteLogin(ctx context.Context, cb Callback) (*LoginOutcome, error) {
	grant, err := s.exchanger.CompleteLogin(ctx, cb)
	if err != nil {
		return nil, err
	}

	u, err := s.reconciler.ResolveOrCreate(ctx, user.ExternalIdentity{
		Provider:  grant.Provider,
		Subject:   grant.Profile.Subject,
		Name:      grant.Profile.Name,
		Email:     grant.Profile.Email,
		AvatarURL: grant.Profile.AvatarURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	session, cookie, err := s.issuer.Issue(ctx, u, grant.tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", u.ID),
		slog.String("provider", string(grant.Provider)),
		slog.String("session_id", session.ID),
	)

	return &LoginOutcome{
		User:     u,
		Cookie:   cookie,
		ReturnTo: grant.ReturnTo,
	}, nil
}

// CurrentUser はセッショントークンからユーザーを取得する。
func (s *Service) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	return s.verifier.Verify(ctx, token)
}

// Logout はセッションを失効させる。
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.verifier.Revoke(ctx, token); err != nil {
		return err
	}
	slog.Info("user logged out")
	return nil
}
