package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/horo/internal/model"
)

const userColumns = `id, external_subject_id, provider, name, email, avatar_url, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByExternalID は外部識別子でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByExternalID(ctx context.Context, externalSubjectID string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_subject_id = $1`,
		externalSubjectID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external ID: %w", err)
	}
	return user, nil
}

// CreateIfAbsent はON CONFLICT DO NOTHINGで作成を試み、
// 競合した場合は勝者の行を読み直して返す。
func (r *PostgresUserRepo) CreateIfAbsent(ctx context.Context, user *model.User) (*model.User, bool, error) {
	created, err := scanUser(r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, external_subject_id, provider, name, email, avatar_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (external_subject_id) DO NOTHING
		 RETURNING `+userColumns,
		user.ID, user.ExternalSubjectID, string(user.Provider), user.Name,
		nullString(user.Email), nullString(user.AvatarURL), user.CreatedAt, user.UpdatedAt,
	))
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert user: %w", err)
	}
	if created != nil {
		return created, true, nil
	}

	existing, err := r.FindByExternalID(ctx, user.ExternalSubjectID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("user %s vanished after insert conflict", user.ExternalSubjectID)
	}
	return existing, false, nil
}

// scanUser は1行をmodel.Userに読み込む。行がなければnilを返す。
func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u         model.User
		provider  string
		email     sql.NullString
		avatarURL sql.NullString
	)
	err := row.Scan(&u.ID, &u.ExternalSubjectID, &provider, &u.Name, &email, &avatarURL, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Provider = model.Provider(provider)
	u.Email = email.String
	u.AvatarURL = avatarURL.String
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
