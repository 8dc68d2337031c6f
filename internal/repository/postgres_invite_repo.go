package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/horo/internal/model"
)

// PostgresInviteRepo はPostgreSQLを使用した招待リポジトリ。
type PostgresInviteRepo struct {
	db *sql.DB
}

// NewPostgresInviteRepo はPostgresInviteRepoを生成する。
func NewPostgresInviteRepo(db *sql.DB) *PostgresInviteRepo {
	return &PostgresInviteRepo{db: db}
}

// Create は招待を作成する。
func (r *PostgresInviteRepo) Create(ctx context.Context, invite *model.Invite) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invites (token_hash, id, inviter_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		invite.TokenHash, invite.ID, invite.InviterID, invite.CreatedAt, invite.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

// FindByTokenHash は招待を招待者名付きで取得する。見つからない場合はnilを返す。
func (r *PostgresInviteRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Invite, error) {
	invite, err := scanInvite(r.db.QueryRowContext(ctx,
		`SELECT i.token_hash, i.id, i.inviter_id, u.name, i.created_at, i.expires_at, i.consumed_at, i.consumed_by
		 FROM invites i
		 JOIN users u ON u.id = i.inviter_id
		 WHERE i.token_hash = $1`,
		tokenHash,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find invite: %w", err)
	}
	return invite, nil
}

// Consume は未使用かつ有効期限内の招待だけを使用済みにする。
// 判定と更新を1文で行うため、同時に呼ばれても成功するのは1つだけ。
func (r *PostgresInviteRepo) Consume(ctx context.Context, tokenHash, userID string, now time.Time) (*model.Invite, error) {
	invite, err := scanInvite(r.db.QueryRowContext(ctx,
		`UPDATE invites i
		 SET consumed_at = $3, consumed_by = $2
		 FROM users u
		 WHERE i.token_hash = $1
		   AND i.consumed_at IS NULL
		   AND i.expires_at > $3
		   AND u.id = i.inviter_id
		 RETURNING i.token_hash, i.id, i.inviter_id, u.name, i.created_at, i.expires_at, i.consumed_at, i.consumed_by`,
		tokenHash, userID, now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to consume invite: %w", err)
	}
	return invite, nil
}

func scanInvite(row *sql.Row) (*model.Invite, error) {
	var (
		inv        model.Invite
		consumedAt sql.NullTime
		consumedBy sql.NullString
	)
	err := row.Scan(&inv.TokenHash, &inv.ID, &inv.InviterID, &inv.InviterName,
		&inv.CreatedAt, &inv.ExpiresAt, &consumedAt, &consumedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if consumedAt.Valid {
		t := consumedAt.Time
		inv.ConsumedAt = &t
	}
	inv.ConsumedBy = consumedBy.String
	return &inv, nil
}

// compile-time interface check
var _ InviteRepository = (*PostgresInviteRepo)(nil)
