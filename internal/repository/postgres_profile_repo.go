package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/horo/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用した出生プロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// Create はプロフィールを作成する。
// 出生時刻が不明の場合、birth_hourはNULLで保存する。
func (r *PostgresProfileRepo) Create(ctx context.Context, p *model.StoredProfile) error {
	var (
		hour    sql.NullInt16
		period  sql.NullString
		unknown bool
	)
	if bt := p.Profile.BirthTime; bt != nil {
		period = nullString(bt.Period)
		unknown = bt.Unknown
		if !bt.Unknown {
			hour = sql.NullInt16{Int16: int16(bt.ChineseHour), Valid: true}
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO birth_profiles
		   (id, user_id, name, birth_date, birth_hour, birth_time_period, is_time_unknown,
		    gender, element_type, day_master, thai_day, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.UserID, p.Profile.Name, p.Profile.BirthDate, hour, period, unknown,
		string(p.Profile.Gender), p.ElementType, p.DayMaster, p.ThaiDay, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create birth profile: %w", err)
	}
	return nil
}

// FindLatestByUserID はユーザーの最新プロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindLatestByUserID(ctx context.Context, userID string) (*model.StoredProfile, error) {
	var (
		p       model.StoredProfile
		hour    sql.NullInt16
		period  sql.NullString
		unknown bool
		gender  string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, to_char(birth_date, 'YYYY-MM-DD'), birth_hour, birth_time_period,
		        is_time_unknown, gender, element_type, day_master, thai_day, created_at
		 FROM birth_profiles
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
	).Scan(&p.ID, &p.UserID, &p.Profile.Name, &p.Profile.BirthDate, &hour, &period,
		&unknown, &gender, &p.ElementType, &p.DayMaster, &p.ThaiDay, &p.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find birth profile: %w", err)
	}

	p.Profile.Gender = model.Gender(gender)
	if period.Valid || unknown || hour.Valid {
		p.Profile.BirthTime = &model.BirthTime{
			Period:      period.String,
			ChineseHour: int(hour.Int16),
			Unknown:     unknown,
		}
	}
	return &p, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
