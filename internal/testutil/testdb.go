// Package testutil はPostgreSQLを使う統合テストの補助関数を提供する。
package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hitoshi/advisorhub/internal/database"
)

// SetupTestDB はPostgreSQLコンテナを起動し、マイグレーション適用済みの接続を返す。
// -short 指定時、またはDockerが利用できない環境ではテストをスキップする。
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("統合テストは -short ではスキップ")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("advisorhub_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("PostgreSQLコンテナを起動できません（スキップ）: %v", err)
	}

	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	if err := database.RunMigrations(connStr); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	db, err := database.Open(connStr, database.PoolConfig{MaxOpenConns: 20})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

// SeedUser はテスト用ユーザーを指定の発行枠で作成し、IDを返す。
func SeedUser(t *testing.T, db *sql.DB, email string, availableInvites int) string {
	t.Helper()

	id := uuid.New().String()
	_, err := db.Exec(
		`INSERT INTO users (id, email, name, available_invites) VALUES ($1, $2, $3, $4)`,
		id, email, "Test User", availableInvites,
	)
	if err != nil {
		t.Fatalf("seed test user %s: %v", email, err)
	}
	return id
}

// AvailableInvites はユーザーの現在の発行枠を返す。
func AvailableInvites(t *testing.T, db *sql.DB, userID string) int {
	t.Helper()

	var n int
	if err := db.QueryRow(`SELECT available_invites FROM users WHERE id = $1`, userID).Scan(&n); err != nil {
		t.Fatalf("get available invites %s: %v", userID, err)
	}
	return n
}

// CountInviteCodes は発行者の招待コード件数を返す。
func CountInviteCodes(t *testing.T, db *sql.DB, creatorID string) int {
	t.Helper()

	var n int
	if err := db.QueryRow(`SELECT count(*) FROM invite_codes WHERE created_by = $1`, creatorID).Scan(&n); err != nil {
		t.Fatalf("count invite codes %s: %v", creatorID, err)
	}
	return n
}
