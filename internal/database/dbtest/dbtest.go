// Package dbtest はPostgreSQLを使う結合テストの共通処理を提供する。
//
// TEST_DATABASE_URLが設定されていればそのDBを使い、
// 未設定の場合はtestcontainersでPostgreSQLコンテナを起動する。
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hitoshi/horo/internal/database"
)

const (
	postgresImage    = "postgres:16-alpine"
	postgresUser     = "horo"
	postgresPassword = "horo"
	postgresDB       = "horo_test"
)

// Start はテスト用PostgreSQLを準備してマイグレーションを適用し、
// 接続URLと後片付け関数を返す。
func Start(ctx context.Context) (string, func(), error) {
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		if err := database.RunMigrations(url); err != nil {
			return "", nil, err
		}
		return url, func() {}, nil
	}

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	cleanup := func() {
		if err := container.Terminate(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
		}
	}

	host, err := container.Host(ctx)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	url := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser, postgresPassword, host, port.Port(), postgresDB)

	if err := database.RunMigrations(url); err != nil {
		cleanup()
		return "", nil, err
	}

	return url, cleanup, nil
}

// Open はurlに接続し、全テーブルを空にしたDBを返す。
// 接続はテスト終了時に閉じられる。
func Open(t *testing.T, url string) *sql.DB {
	t.Helper()

	db, err := database.Open(url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Ping(context.Background(), db, 10*time.Second))
	Truncate(t, db)
	return db
}

// Truncate は全テーブルのデータを削除する。
func Truncate(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE birth_profiles, invites, sessions, users CASCADE`)
	require.NoError(t, err)
}

// InsertUser はテスト用ユーザーを直接挿入してIDを返す。
func InsertUser(t *testing.T, db *sql.DB, id, externalID, name string) string {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO users (id, external_subject_id, provider, name) VALUES ($1, $2, 'google', $3)`,
		id, externalID, name,
	)
	require.NoError(t, err)
	return id
}
