// Package invite は相性占いの招待トークンの発行・参照・消費を提供する。
package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hitoshi/horo/internal/model"
	"github.com/hitoshi/horo/internal/repository"
	"github.com/hitoshi/horo/internal/security"
)

// DefaultTTL は招待の既定の有効期間。
const DefaultTTL = 7 * 24 * time.Hour

// IssuedInvite は発行した招待。Tokenは発行時にしか得られない。
type IssuedInvite struct {
	ID        string
	Token     string
	URL       string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Resolution は招待の参照結果。
type Resolution struct {
	InviterID   string
	InviterName string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Consumed    bool
}

// Service は招待トークンを管理する。
type Service struct {
	repo     repository.InviteRepository
	ttl      time.Duration
	linkBase string

	// Now は現在時刻を返す。テストで差し替える。
	Now func() time.Time
}

// NewService はServiceを生成する。
// linkBaseは招待URLの基点（フロントエンドのURL）。
func NewService(repo repository.InviteRepository, ttl time.Duration, linkBase string) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		repo:     repo,
		ttl:      ttl,
		linkBase: linkBase,
		Now:      time.Now,
	}
}

// Issue は招待を発行する。ttlが0以下なら既定の有効期間を使う。
func (s *Service) Issue(ctx context.Context, inviterID string, ttl time.Duration) (*IssuedInvite, error) {
	if inviterID == "" {
		return nil, fmt.Errorf("%w: inviter is required", model.ErrInvalidRequest)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	token, err := security.GenerateToken(security.InviteTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate invite token: %w", err)
	}

	now := s.Now()
	inv := &model.Invite{
		ID:        ulid.Make().String(),
		TokenHash: security.FingerprintToken(token),
		InviterID: inviterID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to save invite: %w", errors.Join(model.ErrInternal, err))
	}

	slog.Info("invite issued",
		slog.String("invite_id", inv.ID),
		slog.String("inviter_id", inviterID),
	)

	return &IssuedInvite{
		ID:        inv.ID,
		Token:     token,
		URL:       s.linkBase + "/invite/" + token,
		CreatedAt: inv.CreatedAt,
		ExpiresAt: inv.ExpiresAt,
	}, nil
}

// Resolve は招待を消費せずに参照する。
// 使用済みでも期限内であれば参照でき、Consumedがtrueになる。
func (s *Service) Resolve(ctx context.Context, token string) (*Resolution, error) {
	inv, err := s.find(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.IsExpired(s.Now()) {
		return nil, model.ErrInviteExpired
	}
	return toResolution(inv), nil
}

// Consume は招待を使用済みにする。
// 判定と更新は1回の条件付きUPDATEで行い、同時に呼ばれても成功は1つだけ。
func (s *Service) Consume(ctx context.Context, token, userID string) (*Resolution, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: consuming user is required", model.ErrInvalidRequest)
	}

	inv, err := s.find(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.InviterID == userID {
		return nil, model.ErrSelfInvite
	}

	hash := security.FingerprintToken(token)
	consumed, err := s.repo.Consume(ctx, hash, userID, s.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to consume invite: %w", errors.Join(model.ErrInternal, err))
	}
	if consumed == nil {
		return nil, s.classify(ctx, hash)
	}

	slog.Info("invite consumed",
		slog.String("invite_id", consumed.ID),
		slog.String("inviter_id", consumed.InviterID),
		slog.String("user_id", userID),
	)
	return toResolution(consumed), nil
}

// classify は条件付きUPDATEが0件だった理由を判定する。
func (s *Service) classify(ctx context.Context, hash string) error {
	inv, err := s.repo.FindByTokenHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("failed to reload invite: %w", errors.Join(model.ErrInternal, err))
	}
	switch {
	case inv == nil:
		return model.ErrInviteNotFound
	case inv.IsConsumed():
		return model.ErrInviteAlreadyConsumed
	case inv.IsExpired(s.Now()):
		return model.ErrInviteExpired
	default:
		return model.ErrInviteAlreadyConsumed
	}
}

func (s *Service) find(ctx context.Context, token string) (*model.Invite, error) {
	if token == "" {
		return nil, model.ErrInviteNotFound
	}
	inv, err := s.repo.FindByTokenHash(ctx, security.FingerprintToken(token))
	if err != nil {
		return nil, fmt.Errorf("failed to find invite: %w", errors.Join(model.ErrInternal, err))
	}
	if inv == nil {
		return nil, model.ErrInviteNotFound
	}
	return inv, nil
}

func toResolution(inv *model.Invite) *Resolution {
	return &Resolution{
		InviterID:   inv.InviterID,
		InviterName: inv.InviterName,
		CreatedAt:   inv.CreatedAt,
		ExpiresAt:   inv.ExpiresAt,
		Consumed:    inv.IsConsumed(),
	}
}
