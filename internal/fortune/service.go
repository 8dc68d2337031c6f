// Package fortune はログイン前の簡易鑑定とログイン後のプロフィール保存を提供する。
package fortune

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/horo/internal/aitext"
	"github.com/hitoshi/horo/internal/astrology"
	"github.com/hitoshi/horo/internal/model"
	"github.com/hitoshi/horo/internal/repository"
	"github.com/hitoshi/horo/internal/security"
)

const (
	// DefaultTeaserTimeout は簡易鑑定の生成全体のタイムアウト。
	DefaultTeaserTimeout = 20 * time.Second

	teaserMaxTokens = 200
	maxNameRunes    = 100
)

// Service は鑑定のサービス層。
type Service struct {
	engine    astrology.Engine
	generator aitext.Generator
	profiles  repository.ProfileRepository
	sanitizer security.TextSanitizer
	timeout   time.Duration
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	engine astrology.Engine,
	generator aitext.Generator,
	profiles repository.ProfileRepository,
	sanitizer security.TextSanitizer,
	timeout time.Duration,
) *Service {
	if timeout <= 0 {
		timeout = DefaultTeaserTimeout
	}
	return &Service{
		engine:    engine,
		generator: generator,
		profiles:  profiles,
		sanitizer: sanitizer,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Teaser は認証なしで簡易鑑定を生成する。
// 出生時刻が不明な場合は時刻なしで命式を計算する。
func (s *Service) Teaser(ctx context.Context, p model.BirthProfile) (*model.Teaser, error) {
	birthDate, chart, err := s.calculate(p)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reading, err := s.generator.Generate(ctx, teaserPrompt(birthDate, chart), teaserMaxTokens)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("teaser generation timed out: %w", model.ErrUpstreamFailure)
		}
		if errors.Is(err, model.ErrUpstreamFailure) {
			return nil, fmt.Errorf("failed to generate teaser: %w", err)
		}
		return nil, fmt.Errorf("failed to generate teaser: %w", errors.Join(model.ErrGenerationFailed, err))
	}

	return &model.Teaser{
		ElementType:  string(chart.Element),
		Personality:  chart.Thai.Personality,
		TodaySnippet: reading,
		LuckyColor:   chart.Thai.Color,
		LuckyNumber:  chart.Thai.LuckyNumber,
	}, nil
}

// SaveProfile は認証済みユーザーの出生プロフィールを保存する。
func (s *Service) SaveProfile(ctx context.Context, userID string, p model.BirthProfile) (*model.StoredProfile, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", model.ErrUnauthenticated)
	}
	if p.Gender == "" {
		return nil, fmt.Errorf("%w: gender is required", model.ErrInvalidRequest)
	}

	_, chart, err := s.calculate(p)
	if err != nil {
		return nil, err
	}

	p.Name = s.sanitizer.Sanitize(p.Name, maxNameRunes)
	stored := &model.StoredProfile{
		ID:          uuid.New().String(),
		UserID:      userID,
		Profile:     p,
		ElementType: string(chart.Element),
		DayMaster:   chart.DayMaster,
		ThaiDay:     chart.Thai.Day,
		CreatedAt:   s.now(),
	}
	if err := s.profiles.Create(ctx, stored); err != nil {
		return nil, fmt.Errorf("failed to save birth profile: %w", errors.Join(model.ErrInternal, err))
	}

	slog.Info("birth profile saved",
		slog.String("user_id", userID),
		slog.String("profile_id", stored.ID),
	)
	return stored, nil
}

// calculate は入力を検証して命式を計算する。
func (s *Service) calculate(p model.BirthProfile) (time.Time, *astrology.Chart, error) {
	birthDate, err := p.ParsedBirthDate()
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}
	if birthDate.After(s.now()) {
		return time.Time{}, nil, fmt.Errorf("%w: birth date is in the future", model.ErrInvalidRequest)
	}
	if p.Gender != "" && !p.Gender.Valid() {
		return time.Time{}, nil, fmt.Errorf("%w: invalid gender %q", model.ErrInvalidRequest, p.Gender)
	}

	chart, err := s.engine.Calculate(birthDate, p.BirthHour(), p.Gender)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}
	return birthDate, chart, nil
}
