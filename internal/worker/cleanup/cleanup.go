// Package cleanup は期限切れのセッションと招待を削除するジョブを提供する。
// セッションは有効期限を過ぎたものを、招待は期限切れまたは使用済みになってから
// 保持期間（デフォルト30日）を超えたものを削除する。
package cleanup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/horo/internal/metrics"
)

// DefaultRetention は使用済み・期限切れの招待を保持する期間。
const DefaultRetention = 30 * 24 * time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Result は1回の実行で削除した件数。
type Result struct {
	Sessions int64
	Invites  int64
}

// CleanupJob は期限切れデータの削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	db        Executor
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
	Retention time.Duration
	Now       func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionが0以下の場合はDefaultRetentionを使用する。
func NewCleanupJob(db Executor, logger *slog.Logger, collector metrics.MetricsCollector, retention time.Duration) *CleanupJob {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &CleanupJob{
		db:        db,
		logger:    logger,
		metrics:   collector,
		Retention: retention,
		Now:       time.Now,
	}
}

// Run は期限切れのセッションと保持期間を超えた招待を削除する。
// 片方の削除に失敗してももう片方は実行し、エラーをまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	now := j.Now()
	var res Result

	sessions, sessErr := j.exec(ctx, "sessions",
		`DELETE FROM sessions WHERE expires_at <= $1`, now)
	res.Sessions = sessions

	invites, invErr := j.exec(ctx, "invites",
		`DELETE FROM invites
		 WHERE expires_at <= $1
		    OR (consumed_at IS NOT NULL AND consumed_at <= $1)`, now.Add(-j.Retention))
	res.Invites = invites

	if err := errors.Join(sessErr, invErr); err != nil {
		return res, err
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", res.Sessions),
		slog.Int64("deleted_invites", res.Invites),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return res, nil
}

func (j *CleanupJob) exec(ctx context.Context, target, query string, arg time.Time) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, arg)
	if err != nil {
		j.logger.Error("クリーンアップの実行に失敗しました",
			slog.String("target", target),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("%sのクリーンアップに失敗: %w", target, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%sの削除件数の取得に失敗: %w", target, err)
	}
	j.metrics.RecordCleanup(target, deleted)
	return deleted, nil
}

// Scheduler はcron式に従ってCleanupJobを繰り返し実行する。
type Scheduler struct {
	job      *CleanupJob
	schedule cron.Schedule
	logger   *slog.Logger
}

// NewScheduler はcron式（"@daily" や "0 3 * * *"）を解釈してSchedulerを生成する。
func NewScheduler(job *CleanupJob, expr string, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", expr, err)
	}
	return &Scheduler{job: job, schedule: schedule, logger: logger}, nil
}

// Start はコンテキストがキャンセルされるまでジョブを実行し続ける。
// 起動直後に1回実行する。
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("クリーンアップスケジューラを開始しました")
	s.runOnce(ctx)

	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("クリーンアップスケジューラを停止しました")
			return
		case <-timer.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.job.Run(ctx); err != nil {
		s.logger.Error("クリーンアップサイクルの実行に失敗しました", slog.String("error", err.Error()))
	}
}
