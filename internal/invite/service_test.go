package invite

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/horo/internal/model"
	"github.com/hitoshi/horo/internal/repository"
	"github.com/hitoshi/horo/internal/security"
)

// memInviteRepo は条件付きUPDATEをmutexで再現するインメモリ実装。
type memInviteRepo struct {
	mu     sync.Mutex
	byHash map[string]*model.Invite
	names  map[string]string
	err    error
}

func newMemInviteRepo() *memInviteRepo {
	return &memInviteRepo{
		byHash: make(map[string]*model.Invite),
		names:  map[string]string{"inviter": "Alice"},
	}
}

func (m *memInviteRepo) Create(_ context.Context, inv *model.Invite) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inv
	m.byHash[inv.TokenHash] = &cp
	return nil
}

func (m *memInviteRepo) FindByTokenHash(_ context.Context, hash string) (*model.Invite, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.byHash[hash]
	if !ok {
		return nil, nil
	}
	cp := *inv
	cp.InviterName = m.names[inv.InviterID]
	return &cp, nil
}

func (m *memInviteRepo) Consume(_ context.Context, hash, userID string, now time.Time) (*model.Invite, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.byHash[hash]
	if !ok || inv.IsConsumed() || inv.IsExpired(now) {
		return nil, nil
	}
	t := now
	inv.ConsumedAt = &t
	inv.ConsumedBy = userID
	cp := *inv
	cp.InviterName = m.names[inv.InviterID]
	return &cp, nil
}

var _ repository.InviteRepository = (*memInviteRepo)(nil)

var day0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func newTestService(repo repository.InviteRepository) (*Service, *time.Time) {
	now := day0
	svc := NewService(repo, 0, "https://horo.example.com")
	svc.Now = func() time.Time { return now }
	return svc, &now
}

func TestService_Issue(t *testing.T) {
	repo := newMemInviteRepo()
	svc, _ := newTestService(repo)

	issued, err := svc.Issue(context.Background(), "inviter", 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if issued.Token == "" {
		t.Fatal("token should be returned")
	}
	if !issued.ExpiresAt.Equal(day0.Add(DefaultTTL)) {
		t.Errorf("ExpiresAt = %v, want %v", issued.ExpiresAt, day0.Add(DefaultTTL))
	}
	if issued.URL != "https://horo.example.com/invite/"+issued.Token {
		t.Errorf("URL = %q", issued.URL)
	}
	if len(issued.ID) != 26 {
		t.Errorf("ID = %q, want ULID", issued.ID)
	}

	// 保存されるのはフィンガープリントのみ
	for hash := range repo.byHash {
		if hash == issued.Token {
			t.Error("raw token must not be stored")
		}
		if hash != security.FingerprintToken(issued.Token) {
			t.Errorf("stored hash = %q, want fingerprint", hash)
		}
	}
}

func TestService_Issue_CustomTTL(t *testing.T) {
	svc, _ := newTestService(newMemInviteRepo())
	issued, err := svc.Issue(context.Background(), "inviter", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !issued.ExpiresAt.Equal(day0.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want day0+1h", issued.ExpiresAt)
	}
}

func TestService_Issue_TokensAreUnique(t *testing.T) {
	svc, _ := newTestService(newMemInviteRepo())
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		issued, err := svc.Issue(context.Background(), "inviter", 0)
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if seen[issued.Token] {
			t.Fatalf("duplicate token %q", issued.Token)
		}
		seen[issued.Token] = true
	}
}

func TestService_Resolve(t *testing.T) {
	svc, _ := newTestService(newMemInviteRepo())
	issued, _ := svc.Issue(context.Background(), "inviter", 0)

	res, err := svc.Resolve(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.InviterName != "Alice" {
		t.Errorf("InviterName = %q, want Alice", res.InviterName)
	}
	if res.Consumed {
		t.Error("Consumed should be false")
	}

	// 参照しても消費されない
	if _, err := svc.Consume(context.Background(), issued.Token, "invitee"); err != nil {
		t.Errorf("Consume() after Resolve error = %v", err)
	}
}

func TestService_Resolve_NotFound(t *testing.T) {
	svc, _ := newTestService(newMemInviteRepo())
	for _, token := range []string{"", "unknown"} {
		if _, err := svc.Resolve(context.Background(), token); !errors.Is(err, model.ErrInviteNotFound) {
			t.Errorf("Resolve(%q) error = %v, want ErrInviteNotFound", token, err)
		}
	}
}

// TestService_ExpiredOnDay8 は7日間の招待を8日目に参照・消費するとExpiredになることを検証する。
func TestService_ExpiredOnDay8(t *testing.T) {
	svc, now := newTestService(newMemInviteRepo())
	issued, err := svc.Issue(context.Background(), "inviter", 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	*now = day0.Add(8 * 24 * time.Hour)

	if _, err := svc.Resolve(context.Background(), issued.Token); !errors.Is(err, model.ErrInviteExpired) {
		t.Errorf("Resolve() error = %v, want ErrInviteExpired", err)
	}
	if _, err := svc.Consume(context.Background(), issued.Token, "invitee"); !errors.Is(err, model.ErrInviteExpired) {
		t.Errorf("Consume() error = %v, want ErrInviteExpired", err)
	}
	if errors.Is(model.ErrInviteExpired, model.ErrInviteNotFound) {
		t.Error("expired must be distinguishable from not found")
	}
}

// TestService_ExpiryBoundary は有効期限ちょうどで使用不可になることを検証する。
func TestService_ExpiryBoundary(t *testing.T) {
	svc, now := newTestService(newMemInviteRepo())
	issued, _ := svc.Issue(context.Background(), "inviter", time.Hour)

	*now = day0.Add(time.Hour - time.Nanosecond)
	if _, err := svc.Resolve(context.Background(), issued.Token); err != nil {
		t.Errorf("Resolve() just before expiry error = %v", err)
	}

	*now = day0.Add(time.Hour)
	if _, err := svc.Resolve(context.Background(), issued.Token); !errors.Is(err, model.ErrInviteExpired) {
		t.Errorf("Resolve() at expiry error = %v, want ErrInviteExpired", err)
	}
}

func TestService_Consume(t *testing.T) {
	svc, _ := newTestService(newMemInviteRepo())
	issued, _ := svc.Issue(context.Background(), "inviter", 0)

	res, err := svc.Consume(context.Background(), issued.Token, "invitee")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if res.InviterID != "inviter" || !res.Consumed {
		t.Errorf("unexpected resolution: %+v", res)
	}

	// 2回目はConflict
	_, err = svc.Consume(context.Background(), issued.Token, "someone-else")
	if !errors.Is(err, model.ErrInviteAlreadyConsumed) {
		t.Errorf("second Consume() error = %v, want ErrInviteAlreadyConsumed", err)
	}
	if !errors.Is(err, model.ErrConflict) {
		t.Errorf("second Consume() error = %v, want kind Conflict", err)
	}

	// 使用済みでも期限内なら参照できる
	resolved, err := svc.Resolve(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("Resolve() after consume error = %v", err)
	}
	if !resolved.Consumed {
		t.Error("Consumed should be true")
	}
}

func TestService_Consume_SelfInvite(t *testing.T) {
	svc, _ := newTestService(newMemInviteRepo())
	issued, _ := svc.Issue(context.Background(), "inviter", 0)

	if _, err := svc.Consume(context.Background(), issued.Token, "inviter"); !errors.Is(err, model.ErrSelfInvite) {
		t.Errorf("error = %v, want ErrSelfInvite", err)
	}
	// 自己招待は消費扱いにならない
	if _, err := svc.Consume(context.Background(), issued.Token, "invitee"); err != nil {
		t.Errorf("Consume() by invitee error = %v", err)
	}
}

func TestService_Consume_NotFound(t *testing.T) {
	svc, _ := newTestService(newMemInviteRepo())
	if _, err := svc.Consume(context.Background(), "nope", "invitee"); !errors.Is(err, model.ErrInviteNotFound) {
		t.Errorf("error = %v, want ErrInviteNotFound", err)
	}
}

func TestService_StorageError(t *testing.T) {
	repo := newMemInviteRepo()
	svc, _ := newTestService(repo)
	issued, _ := svc.Issue(context.Background(), "inviter", 0)
	repo.err = errors.New("db down")

	if _, err := svc.Resolve(context.Background(), issued.Token); !errors.Is(err, model.ErrInternal) {
		t.Errorf("Resolve() error = %v, want ErrInternal", err)
	}
	if _, err := svc.Consume(context.Background(), issued.Token, "invitee"); !errors.Is(err, model.ErrInternal) {
		t.Errorf("Consume() error = %v, want ErrInternal", err)
	}
	if _, err := svc.Issue(context.Background(), "inviter", 0); !errors.Is(err, model.ErrInternal) {
		t.Errorf("Issue() error = %v, want ErrInternal", err)
	}
}

// TestService_Consume_Concurrent は同時消費で成功が1つだけであることを検証する。
func TestService_Consume_Concurrent(t *testing.T) {
	svc, _ := newTestService(newMemInviteRepo())
	issued, _ := svc.Issue(context.Background(), "inviter", 0)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Consume(context.Background(), issued.Token, "invitee-"+strings.Repeat("x", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, model.ErrInviteAlreadyConsumed):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
	if conflicts != n-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, n-1)
	}
}
