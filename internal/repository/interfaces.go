// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/horo/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByExternalID は外部識別子でユーザーを取得する。見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalSubjectID string) (*model.User, error)

	// CreateIfAbsent は外部識別子が未登録の場合のみユーザーを作成する。
	// 既に存在する場合は既存ユーザーを返し、createdはfalseになる。
	// 同時実行されても作成されるのは1件のみ。
	CreateIfAbsent(ctx context.Context, user *model.User) (stored *model.User, created bool, err error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindActiveByTokenHash はnow時点で有効なセッションを取得する。
	// 見つからない、または期限切れの場合はnilを返す。
	FindActiveByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*model.Session, error)

	// DeleteByTokenHash はセッションを削除する。存在しなくてもエラーにしない。
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
}

// InviteRepository は招待トークンの永続化インターフェース。
type InviteRepository interface {
	// Create は招待を作成する。
	Create(ctx context.Context, invite *model.Invite) error

	// FindByTokenHash は招待を招待者名付きで取得する。見つからない場合はnilを返す。
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.Invite, error)

	// Consume は未使用かつnow時点で有効な招待を1回の条件付きUPDATEで使用済みにする。
	// 条件に合う行がなければnilを返す。
	Consume(ctx context.Context, tokenHash, userID string, now time.Time) (*model.Invite, error)
}

// ProfileRepository は出生プロフィールの永続化インターフェース。
type ProfileRepository interface {
	// Create はプロフィールを作成する。
	Create(ctx context.Context, profile *model.StoredProfile) error

	// FindLatestByUserID はユーザーの最新プロフィールを取得する。見つからない場合はnilを返す。
	FindLatestByUserID(ctx context.Context, userID string) (*model.StoredProfile, error)
}
