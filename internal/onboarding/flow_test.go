package onboarding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/horo/internal/model"
)

// --- モック定義 ---

type mockTeaserSource struct {
	teaserFn func(ctx context.Context, profile model.BirthProfile) (*model.Teaser, error)
	calls    int
}

func (m *mockTeaserSource) Teaser(ctx context.Context, profile model.BirthProfile) (*model.Teaser, error) {
	m.calls++
	return m.teaserFn(ctx, profile)
}

type mockIdentitySource struct {
	currentUserFn func(ctx context.Context) (*model.User, error)
}

func (m *mockIdentitySource) CurrentUser(ctx context.Context) (*model.User, error) {
	return m.currentUserFn(ctx)
}

type mockProfileSaver struct {
	saveFn func(ctx context.Context, profile model.BirthProfile) (string, error)
	saved  []model.BirthProfile
}

func (m *mockProfileSaver) SaveProfile(ctx context.Context, profile model.BirthProfile) (string, error) {
	m.saved = append(m.saved, profile)
	return m.saveFn(ctx, profile)
}

type mockInviteConsumer struct {
	consumeFn func(ctx context.Context, token string) (string, error)
	tokens    []string
}

func (m *mockInviteConsumer) ConsumeInvite(ctx context.Context, token string) (string, error) {
	m.tokens = append(m.tokens, token)
	return m.consumeFn(ctx, token)
}

type flowMocks struct {
	teasers  *mockTeaserSource
	identity *mockIdentitySource
	profiles *mockProfileSaver
	invites  *mockInviteConsumer
}

func newFlowMocks() *flowMocks {
	return &flowMocks{
		teasers: &mockTeaserSource{teaserFn: func(ctx context.Context, profile model.BirthProfile) (*model.Teaser, error) {
			t := sampleTeaser
			return &t, nil
		}},
		identity: &mockIdentitySource{currentUserFn: func(ctx context.Context) (*model.User, error) {
			return &model.User{ID: "user-1", Name: "Somchai"}, nil
		}},
		profiles: &mockProfileSaver{saveFn: func(ctx context.Context, profile model.BirthProfile) (string, error) {
			return "profile-1", nil
		}},
		invites: &mockInviteConsumer{consumeFn: func(ctx context.Context, token string) (string, error) {
			return "inviter-1", nil
		}},
	}
}

func (m *flowMocks) deps() FlowDeps {
	return FlowDeps{Teasers: m.teasers, Identity: m.identity, Profiles: m.profiles, Invites: m.invites}
}

// answerAll はteaserまで回答を進める。
func answerAll(t *testing.T, f *Flow) {
	t.Helper()
	for _, e := range []Event{
		Start{},
		SubmitName{Name: "Somchai"},
		SubmitBirthDate{BirthDate: "1998-05-12"},
		SubmitGender{Gender: model.GenderMale},
		SubmitBirthTime{Unknown: true},
	} {
		if _, err := f.Apply(e); err != nil {
			t.Fatalf("Apply(%T) unexpected error: %v", e, err)
		}
	}
}

// --- テスト ---

func TestFlow_FullOnboarding(t *testing.T) {
	m := newFlowMocks()
	f := NewFlow(NewState(), m.deps(), time.Second)
	answerAll(t, f)

	teaser, err := f.GenerateTeaser(context.Background())
	if err != nil {
		t.Fatalf("GenerateTeaser unexpected error: %v", err)
	}
	if teaser.LuckyColor != "pink" {
		t.Errorf("LuckyColor = %q, want pink", teaser.LuckyColor)
	}
	if _, err := f.Apply(Continue{}); err != nil {
		t.Fatalf("Continue unexpected error: %v", err)
	}

	s, err := f.CompleteAuth(context.Background())
	if err != nil {
		t.Fatalf("CompleteAuth unexpected error: %v", err)
	}
	if s.Step != StepDone || s.UserID != "user-1" || s.Guest {
		t.Errorf("state = %s", stateKey(s))
	}
	if len(m.profiles.saved) != 1 || m.profiles.saved[0].Name != "Somchai" {
		t.Errorf("saved profiles = %+v", m.profiles.saved)
	}
	if len(m.invites.tokens) != 0 {
		t.Errorf("ConsumeInvite called without invite: %v", m.invites.tokens)
	}
}

func TestFlow_GenerateTeaser_Retryable(t *testing.T) {
	t.Run("上流エラーの後に再試行できる", func(t *testing.T) {
		m := newFlowMocks()
		fail := true
		m.teasers.teaserFn = func(ctx context.Context, profile model.BirthProfile) (*model.Teaser, error) {
			if fail {
				fail = false
				return nil, model.ErrGenerationFailed
			}
			t := sampleTeaser
			return &t, nil
		}
		f := NewFlow(NewState(), m.deps(), time.Second)
		answerAll(t, f)

		_, err := f.GenerateTeaser(context.Background())
		if !errors.Is(err, model.ErrUpstreamFailure) {
			t.Fatalf("error = %v, want ErrUpstreamFailure", err)
		}
		if s := f.State(); s.Step != StepTeaser || s.Teaser != nil {
			t.Fatalf("state after failure = %s", stateKey(s))
		}
		if _, err := f.Apply(Continue{}); !errors.Is(err, ErrTeaserRequired) {
			t.Errorf("Continue after failure: error = %v, want ErrTeaserRequired", err)
		}

		if _, err := f.GenerateTeaser(context.Background()); err != nil {
			t.Fatalf("retry unexpected error: %v", err)
		}
		if f.State().Teaser == nil {
			t.Error("Teaser should be set after retry")
		}
	})

	t.Run("タイムアウトは上流エラーになる", func(t *testing.T) {
		m := newFlowMocks()
		m.teasers.teaserFn = func(ctx context.Context, profile model.BirthProfile) (*model.Teaser, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		f := NewFlow(NewState(), m.deps(), 20*time.Millisecond)
		answerAll(t, f)

		_, err := f.GenerateTeaser(context.Background())
		if !errors.Is(err, model.ErrUpstreamFailure) || !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("error = %v, want upstream timeout", err)
		}
		if f.State().Step != StepTeaser {
			t.Errorf("Step = %q, want teaser", f.State().Step)
		}
	})

	t.Run("teaser以外では呼び出せない", func(t *testing.T) {
		m := newFlowMocks()
		f := NewFlow(NewState(), m.deps(), time.Second)
		if _, err := f.GenerateTeaser(context.Background()); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("error = %v, want ErrInvalidTransition", err)
		}
		if m.teasers.calls != 0 {
			t.Errorf("Teaser called %d times, want 0", m.teasers.calls)
		}
	})
}

func toAuth(t *testing.T, f *Flow) {
	t.Helper()
	answerAll(t, f)
	if _, err := f.GenerateTeaser(context.Background()); err != nil {
		t.Fatalf("GenerateTeaser unexpected error: %v", err)
	}
	if _, err := f.Apply(Continue{}); err != nil {
		t.Fatalf("Continue unexpected error: %v", err)
	}
}

func TestFlow_CompleteAuth_Invite(t *testing.T) {
	t.Run("招待を使用する", func(t *testing.T) {
		m := newFlowMocks()
		f := NewFlow(NewInviteState("invite-token"), m.deps(), time.Second)
		toAuth(t, f)

		s, err := f.CompleteAuth(context.Background())
		if err != nil {
			t.Fatalf("CompleteAuth unexpected error: %v", err)
		}
		if s.InviterID != "inviter-1" || s.InviteFailure != nil {
			t.Errorf("InviterID = %q, InviteFailure = %v", s.InviterID, s.InviteFailure)
		}
		if len(m.invites.tokens) != 1 || m.invites.tokens[0] != "invite-token" {
			t.Errorf("consumed tokens = %v", m.invites.tokens)
		}
	})

	t.Run("招待の使用に失敗してもdoneへ進む", func(t *testing.T) {
		m := newFlowMocks()
		m.invites.consumeFn = func(ctx context.Context, token string) (string, error) {
			return "", model.ErrInviteExpired
		}
		f := NewFlow(NewInviteState("invite-token"), m.deps(), time.Second)
		toAuth(t, f)

		s, err := f.CompleteAuth(context.Background())
		if !errors.Is(err, model.ErrInviteExpired) {
			t.Fatalf("error = %v, want ErrInviteExpired", err)
		}
		if s.Step != StepDone || s.UserID != "user-1" {
			t.Errorf("state = %s, want done", stateKey(s))
		}
		if !errors.Is(s.InviteFailure, model.ErrInviteExpired) {
			t.Errorf("InviteFailure = %v", s.InviteFailure)
		}
		if f.State().InviteFailure == nil {
			t.Error("InviteFailure should be kept in flow state")
		}
		if len(m.profiles.saved) != 1 {
			t.Errorf("profile saved %d times, want 1", len(m.profiles.saved))
		}
	})
}

func TestFlow_CompleteAuth_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(m *flowMocks)
		wantErr error
	}{
		{
			name: "未認証",
			setup: func(m *flowMocks) {
				m.identity.currentUserFn = func(ctx context.Context) (*model.User, error) {
					return nil, model.ErrUnauthenticated
				}
			},
			wantErr: model.ErrUnauthenticated,
		},
		{
			name: "ユーザーなし",
			setup: func(m *flowMocks) {
				m.identity.currentUserFn = func(ctx context.Context) (*model.User, error) {
					return nil, nil
				}
			},
			wantErr: model.ErrUnauthenticated,
		},
		{
			name: "プロフィール保存失敗",
			setup: func(m *flowMocks) {
				m.profiles.saveFn = func(ctx context.Context, profile model.BirthProfile) (string, error) {
					return "", model.ErrInternal
				}
			},
			wantErr: model.ErrInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFlowMocks()
			tt.setup(m)
			f := NewFlow(NewInviteState("invite-token"), m.deps(), time.Second)
			toAuth(t, f)

			s, err := f.CompleteAuth(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if s.Step != StepAuth {
				t.Errorf("Step = %q, want auth", s.Step)
			}
			if len(m.invites.tokens) != 0 {
				t.Errorf("ConsumeInvite should not be called: %v", m.invites.tokens)
			}
		})
	}

	t.Run("auth以外では呼び出せない", func(t *testing.T) {
		f := NewFlow(NewState(), newFlowMocks().deps(), time.Second)
		if _, err := f.CompleteAuth(context.Background()); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("error = %v, want ErrInvalidTransition", err)
		}
	})
}

func TestFlow_SkipAsGuestAndReset(t *testing.T) {
	m := newFlowMocks()
	f := NewFlow(NewInviteState("invite-token"), m.deps(), time.Second)
	toAuth(t, f)

	s, err := f.SkipAsGuest()
	if err != nil {
		t.Fatalf("SkipAsGuest unexpected error: %v", err)
	}
	if s.Step != StepDone || !s.Guest || s.Teaser != nil || s.Draft.Name != "" {
		t.Errorf("guest state = %s", stateKey(s))
	}
	if len(m.profiles.saved) != 0 || len(m.invites.tokens) != 0 {
		t.Error("guest should not save profile or consume invite")
	}

	s = f.Reset()
	if s.Step != StepWelcome || s.Guest || s.InviteToken != "" {
		t.Errorf("reset state = %s", stateKey(s))
	}
}
