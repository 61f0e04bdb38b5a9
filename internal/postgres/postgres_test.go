package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billtracker/internal/core"
)

func TestDecodeChange(t *testing.T) {
	c, err := DecodeChange(`{"table":"bills","op":"UPDATE","user_id":"u-1"}`)
	require.NoError(t, err)
	assert.Equal(t, "bills", c.Table)
	assert.Equal(t, "UPDATE", c.Op)
	assert.Equal(t, "u-1", c.UserID)

	_, err = DecodeChange(`{"op":"INSERT"}`)
	assert.Error(t, err)
	_, err = DecodeChange(`not json`)
	assert.Error(t, err)
}

func TestTranslateUniqueViolation(t *testing.T) {
	err := translate(&pgconn.PgError{Code: "23505"})
	assert.True(t, errors.Is(err, core.ErrDuplicate))

	other := &pgconn.PgError{Code: "23503"}
	assert.Equal(t, error(other), translate(other))
}

func TestNextBackoffIsCapped(t *testing.T) {
	d := minBackoff
	for i := 0; i < 20; i++ {
		d = nextBackoff(d)
	}
	assert.Equal(t, maxBackoff, d)
}

func TestRetryDelayResetsAfterSubscribing(t *testing.T) {
	wait, next := retryDelay(maxBackoff, false)
	assert.Equal(t, maxBackoff, wait)
	assert.Equal(t, maxBackoff, next)

	wait, next = retryDelay(maxBackoff, true)
	assert.Equal(t, minBackoff, wait)
	assert.Equal(t, 2*minBackoff, next)

	wait, _ = retryDelay(next, false)
	assert.Equal(t, 2*minBackoff, wait)
}

// Integration: set TEST_DATABASE_URL to a disposable database.
func testDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, RunMigrations(url))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := Open(ctx, url, 4)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

func TestPostgresRepositories(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	users := NewUserRepository(db)
	u := &core.User{Email: "pg-" + time.Now().Format("150405.000000") + "@example.com", PasswordHash: "x"}
	require.NoError(t, users.CreateUser(ctx, u))
	t.Cleanup(func() {
		_, _ = db.Pool().Exec(context.Background(), `DELETE FROM users WHERE id = $1`, u.ID)
	})

	bills := NewBillRepository(db)
	b, err := bills.InsertBill(ctx, u.ID, core.BillDraft{
		Name:      "Water",
		Amount:    decimal.RequireFromString("19.99"),
		Category:  "utilities",
		DueDate:   core.NewDate(2026, 5, 1),
		Frequency: core.Quarterly,
	})
	require.NoError(t, err)

	list, err := bills.ListBills(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)
	assert.True(t, list[0].Amount.Equal(b.Amount))
	assert.Equal(t, b.DueDate, list[0].DueDate)

	require.NoError(t, bills.SetBillPaid(ctx, u.ID, b.ID, true))
	assert.ErrorIs(t, bills.DeleteBill(ctx, u.ID, "not-a-uuid"), core.ErrNotFound)

	cats := NewCategoryRepository(db)
	require.NoError(t, cats.InsertCategory(ctx, u.ID, "gym"))
	assert.ErrorIs(t, cats.InsertCategory(ctx, u.ID, "gym"), core.ErrDuplicate)
	names, err := cats.ListCategories(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"gym"}, names)
}
