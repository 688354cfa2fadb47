package repository

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"closeus-backend/internal/database"
	"closeus-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// Seeded by the second migration.
const (
	seededQuestion1 = "0b7e2f10-0000-4000-8000-000000000001"
	seededQuestion2 = "0b7e2f10-0000-4000-8000-000000000002"
)

var (
	migrateOnce sync.Once
	migrateErr  error
)

// testDB connects to the database named by CLOSEUS_TEST_DATABASE_URL,
// skipping the test when it is unset. Rows are keyed by fresh UUIDs so
// tests share the schema without cleanup.
func testDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("CLOSEUS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CLOSEUS_TEST_DATABASE_URL is not set")
	}

	migrateOnce.Do(func() { migrateErr = database.Migrate(url) })
	require.NoError(t, migrateErr)

	db, err := database.Connect(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func createUser(t *testing.T, db *pgxpool.Pool, name string) *models.User {
	t.Helper()
	now := time.Now().UTC()
	u := &models.User{
		ID:         uuid.NewString(),
		Email:      strings.ToLower(name) + "@example.com",
		ExternalID: "test-" + uuid.NewString(),
		Name:       name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), u))
	return u
}

func createPendingCouple(t *testing.T, db *pgxpool.Pool, creator *models.User) *models.Couple {
	t.Helper()
	now := time.Now().UTC()
	key := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	expires := now.Add(time.Hour)
	c := &models.Couple{
		ID:                uuid.NewString(),
		Partner1ID:        creator.ID,
		PairingKey:        &key,
		PairingKeyExpires: &expires,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, NewCoupleRepository(db).Create(context.Background(), c))
	return c
}

func uniqueTag() string {
	return "#Test" + uuid.NewString()[:8]
}
