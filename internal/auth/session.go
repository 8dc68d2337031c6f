package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/horo/internal/model"
	"github.com/hitoshi/horo/internal/repository"
	"github.com/hitoshi/horo/internal/security"
)

const (
	// SessionCookieName はセッションCookieの名前。
	SessionCookieName = "session"

	// fallbackSessionLifetime はMaxAgeもIdPの有効期限も無い場合の寿命。
	fallbackSessionLifetime = time.Hour
)

// SessionConfig はセッション発行の設定。
type SessionConfig struct {
	// MaxAge が正ならIdPのトークン寿命に関係なくこの期間を使う。
	MaxAge time.Duration
	Secure bool
	Domain string
}

// SessionCookie はクライアントに渡すセッションCookieの記述子。
type SessionCookie struct {
	Value   string
	MaxAge  int
	Expires time.Time
	Secure  bool
	Domain  string
}

// HTTPCookie はnet/httpのCookieに変換する。
func (c SessionCookie) HTTPCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    c.Value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   c.MaxAge,
		Expires:  c.Expires,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearSessionCookie はセッションCookieを削除するCookieを返す。
func ClearSessionCookie(cfg SessionConfig) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SessionIssuer は不透明なセッショントークンを発行し、セッションを永続化する。
// トークンはIdPのアクセストークンとは独立しており、DBにはフィンガープリントのみ保存する。
type SessionIssuer struct {
	repo   repository.SessionRepository
	sealer *security.Sealer
	config SessionConfig
	now    func() time.Time
}

// NewSessionIssuer はSessionIssuerを生成する。
func NewSessionIssuer(repo repository.SessionRepository, sealer *security.Sealer, config SessionConfig) *SessionIssuer {
	return &SessionIssuer{repo: repo, sealer: sealer, config: config, now: time.Now}
}

// Issue はユーザーのセッションを作成する。
// リフレッシュトークンはセッションIDを関連データとして暗号化して保存する。
func (s *SessionIssuer) Issue(ctx context.Context, user *model.User, tokens TokenSet) (*model.Session, SessionCookie, error) {
	token, err := security.GenerateToken(security.SessionTokenBytes)
	if err != nil {
		return nil, SessionCookie{}, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := s.now()
	lifetime := s.lifetime(tokens)
	session := &model.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: security.FingerprintToken(token),
		ExpiresAt: now.Add(lifetime),
		CreatedAt: now,
	}

	if tokens.RefreshToken != "" {
		sealed, err := s.sealer.Seal([]byte(tokens.RefreshToken), []byte(session.ID))
		if err != nil {
			return nil, SessionCookie{}, fmt.Errorf("failed to seal refresh token: %w", err)
		}
		session.RefreshTokenEnc = sealed
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, SessionCookie{}, fmt.Errorf("failed to save session: %w", errors.Join(model.ErrInternal, err))
	}

	return session, SessionCookie{
		Value:   token,
		MaxAge:  int(lifetime / time.Second),
		Expires: session.ExpiresAt,
		Secure:  s.config.Secure,
		Domain:  s.config.Domain,
	}, nil
}

// RefreshToken は保存済みのリフレッシュトークンを復号する。
func (s *SessionIssuer) RefreshToken(session *model.Session) (string, error) {
	if len(session.RefreshTokenEnc) == 0 {
		return "", nil
	}
	pt, err := s.sealer.Open(session.RefreshTokenEnc, []byte(session.ID))
	if err != nil {
		return "", fmt.Errorf("failed to open refresh token: %w", err)
	}
	return string(pt), nil
}

func (s *SessionIssuer) lifetime(tokens TokenSet) time.Duration {
	switch {
	case s.config.MaxAge > 0:
		return s.config.MaxAge
	case tokens.ExpiresIn > 0:
		return tokens.ExpiresIn
	default:
		return fallbackSessionLifetime
	}
}

// UserFinder はユーザーIDからユーザーを取得するインターフェース。
// ユーザーが存在しない場合はmodel.ErrUserNotFoundを返す。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// SessionVerifier はセッショントークンをユーザーに解決する。
type SessionVerifier struct {
	repo  repository.SessionRepository
	users UserFinder
	now   func() time.Time
}

// NewSessionVerifier はSessionVerifierを生成する。
func NewSessionVerifier(repo repository.SessionRepository, users UserFinder) *SessionVerifier {
	return &SessionVerifier{repo: repo, users: users, now: time.Now}
}

// Verify はトークンに対応する有効なセッションのユーザーを返す。
// トークンが空・不明・期限切れの場合はErrUnauthenticated、
// セッションのユーザーが削除済みの場合はErrUserNotFoundを返す。
func (v *SessionVerifier) Verify(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing session token", model.ErrUnauthenticated)
	}

	session, err := v.repo.FindActiveByTokenHash(ctx, security.FingerprintToken(token), v.now())
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", errors.Join(model.ErrInternal, err))
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session not found or expired", model.ErrUnauthenticated)
	}

	user, err := v.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			slog.Warn("session refers to missing user",
				slog.String("session_id", session.ID),
				slog.String("user_id", session.UserID),
			)
		}
		return nil, err
	}
	return user, nil
}

// Revoke はセッションをサーバー側で削除する。不明なトークンはエラーにしない。
func (v *SessionVerifier) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := v.repo.DeleteByTokenHash(ctx, security.FingerprintToken(token)); err != nil {
		return fmt.Errorf("failed to revoke session: %w", errors.Join(model.ErrInternal, err))
	}
	return nil
}
