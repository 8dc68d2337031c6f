// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/horo/internal/model"
	"github.com/hitoshi/horo/internal/repository"
	"github.com/hitoshi/horo/internal/security"
)

// DefaultDisplayName は名前もメールも得られない場合の表示名。
const DefaultDisplayName = "User"

const maxDisplayNameRunes = 100

// ExternalIdentity はIdPから取得した外部アイデンティティ。
type ExternalIdentity struct {
	Provider  model.Provider
	Subject   string
	Name      string
	Email     string
	AvatarURL string
}

// Service は外部アイデンティティとローカルユーザーを対応付ける。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer security.TextSanitizer
	urlGuard  security.URLGuard
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, sanitizer security.TextSanitizer, urlGuard security.URLGuard) *Service {
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
		urlGuard:  urlGuard,
		now:       time.Now,
	}
}

// ResolveOrCreate は外部識別子に対応するユーザーを返す。
// 未登録なら作成し、登録済みなら保存済みの属性を変更せずにそのまま返す。
func (s *Service) ResolveOrCreate(ctx context.Context, ident ExternalIdentity) (*model.User, error) {
	if ident.Subject == "" {
		return nil, fmt.Errorf("%w: empty external subject", model.ErrInvalidRequest)
	}
	extID := model.ExternalSubjectID(ident.Provider, ident.Subject)

	existing, err := s.userRepo.FindByExternalID(ctx, extID)
	if err != nil {
		slog.Error("failed to look up user",
			slog.String("external_subject_id", extID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to look up user: %w", errors.Join(model.ErrReconciliationFailed, err))
	}
	if existing != nil {
		return existing, nil
	}

	now := s.now()
	candidate := &model.User{
		ID:                uuid.New().String(),
		ExternalSubjectID: extID,
		Provider:          ident.Provider,
		Name:              s.displayName(ident),
		Email:             strings.TrimSpace(ident.Email),
		AvatarURL:         s.avatarURL(ident.AvatarURL),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	stored, created, err := s.userRepo.CreateIfAbsent(ctx, candidate)
	if err != nil {
		slog.Error("failed to create user",
			slog.String("external_subject_id", extID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to create user: %w", errors.Join(model.ErrReconciliationFailed, err))
	}

	if created {
		slog.Info("new user created",
			slog.String("user_id", stored.ID),
			slog.String("provider", string(stored.Provider)),
		)
	}
	return stored, nil
}

// FindByID は指定IDのユーザーを取得する。存在しない場合はErrUserNotFound。
func (s *Service) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", errors.Join(model.ErrInternal, err))
	}
	if u == nil {
		return nil, model.ErrUserNotFound
	}
	return u, nil
}

// displayName は 明示的な名前 → メールのローカル部 → 既定値 の順で表示名を決める。
func (s *Service) displayName(ident ExternalIdentity) string {
	if name := s.sanitizer.Sanitize(ident.Name, maxDisplayNameRunes); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(strings.TrimSpace(ident.Email), "@"); ok && local != "" {
		if name := s.sanitizer.Sanitize(local, maxDisplayNameRunes); name != "" {
			return name
		}
	}
	return DefaultDisplayName
}

func (s *Service) avatarURL(raw string) string {
	if s.urlGuard == nil {
		return ""
	}
	return security.SafeAvatarURL(s.urlGuard, raw)
}
