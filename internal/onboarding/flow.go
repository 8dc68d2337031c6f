package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/horo/internal/model"
)

// DefaultTeaserTimeout は簡易鑑定の生成を待つ上限。
const DefaultTeaserTimeout = 30 * time.Second

// TeaserSource は回答から簡易鑑定を生成する。
type TeaserSource interface {
	Teaser(ctx context.Context, profile model.BirthProfile) (*model.Teaser, error)
}

// IdentitySource は認証済みユーザーを返す。
type IdentitySource interface {
	CurrentUser(ctx context.Context) (*model.User, error)
}

// ProfileSaver は回答を認証済みユーザーのプロフィールとして保存する。
type ProfileSaver interface {
	SaveProfile(ctx context.Context, profile model.BirthProfile) (string, error)
}

// InviteConsumer は招待を使用し、招待者のIDを返す。
type InviteConsumer interface {
	ConsumeInvite(ctx context.Context, token string) (string, error)
}

// FlowDeps はFlowが呼び出す外部処理。
type FlowDeps struct {
	Teasers  TeaserSource
	Identity IdentitySource
	Profiles ProfileSaver
	Invites  InviteConsumer
}

// Flow はStateを保持し、サーバー呼び出しを伴う遷移を実行する。
// 操作は排他的に実行される。
type Flow struct {
	mu            sync.Mutex
	state         State
	deps          FlowDeps
	teaserTimeout time.Duration
}

// NewFlow は新しいFlowを生成する。teaserTimeoutが0以下の場合はDefaultTeaserTimeoutを使用する。
func NewFlow(initial State, deps FlowDeps, teaserTimeout time.Duration) *Flow {
	if teaserTimeout <= 0 {
		teaserTimeout = DefaultTeaserTimeout
	}
	return &Flow{
		state:         initial,
		deps:          deps,
		teaserTimeout: teaserTimeout,
	}
}

// State は現在の状態を返す。
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Apply はイベントを適用する。エラーの場合は状態を変更しない。
func (f *Flow) Apply(e Event) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apply(e)
}

func (f *Flow) apply(e Event) (State, error) {
	next, err := Transition(f.state, e)
	if err != nil {
		return f.state, err
	}
	f.state = next
	return next, nil
}

// GenerateTeaser は現在の回答から簡易鑑定を生成し、状態に反映する。
// 失敗した場合は状態をteaserのまま残すため、再度呼び出せる。
func (f *Flow) GenerateTeaser(ctx context.Context) (*model.Teaser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state.Step != StepTeaser {
		return nil, fmt.Errorf("%w: generate teaser at %s", ErrInvalidTransition, f.state.Step)
	}

	ctx, cancel := context.WithTimeout(ctx, f.teaserTimeout)
	defer cancel()

	teaser, err := f.deps.Teasers.Teaser(ctx, f.state.Draft)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, model.ErrUpstreamFailure) {
			err = errors.Join(model.ErrUpstreamFailure, err)
		}
		return nil, fmt.Errorf("failed to generate teaser: %w", err)
	}
	if teaser == nil {
		return nil, fmt.Errorf("failed to generate teaser: %w", model.ErrGenerationFailed)
	}

	if _, err := f.apply(TeaserReady{Teaser: *teaser}); err != nil {
		return nil, err
	}
	t := *teaser
	return &t, nil
}

// CompleteAuth は認証後の処理を行いdoneへ進める。
// ユーザー確認とプロフィール保存に失敗した場合はauthに留まる。
// 招待の使用に失敗した場合はdoneへ進んだうえでState.InviteFailureに記録し、エラーを返す。
func (f *Flow) CompleteAuth(ctx context.Context) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state.Step != StepAuth {
		return f.state, fmt.Errorf("%w: complete auth at %s", ErrInvalidTransition, f.state.Step)
	}

	user, err := f.deps.Identity.CurrentUser(ctx)
	if err != nil {
		return f.state, fmt.Errorf("failed to get current user: %w", err)
	}
	if user == nil || user.ID == "" {
		return f.state, fmt.Errorf("failed to get current user: %w", model.ErrUnauthenticated)
	}

	profileID, err := f.deps.Profiles.SaveProfile(ctx, f.state.Draft)
	if err != nil {
		return f.state, fmt.Errorf("failed to save profile: %w", err)
	}
	slog.Debug("onboarding profile saved",
		slog.String("user_id", user.ID),
		slog.String("profile_id", profileID),
	)

	token := f.state.InviteToken
	if _, err := f.apply(AuthCompleted{UserID: user.ID}); err != nil {
		return f.state, err
	}
	if token == "" {
		return f.state, nil
	}

	inviterID, err := f.deps.Invites.ConsumeInvite(ctx, token)
	if err != nil {
		f.state.InviteFailure = err
		slog.Warn("onboarding invite not consumed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return f.state, fmt.Errorf("failed to consume invite: %w", err)
	}
	f.state.InviterID = inviterID
	return f.state, nil
}

// SkipAsGuest はゲストのままdoneへ進める。
func (f *Flow) SkipAsGuest() (State, error) {
	return f.Apply(SkipAsGuest{})
}

// Reset は最初からやり直す。
func (f *Flow) Reset() State {
	s, _ := f.Apply(Reset{})
	return s
}
