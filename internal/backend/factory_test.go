package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billtracker/internal/config"
	"billtracker/internal/core"
	"billtracker/internal/log"
	"billtracker/internal/remote"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{DataBackend: "postgres", DatabaseURL: "postgres://x", DBMaxConnections: 4})
	require.NoError(t, err)
	assert.Equal(t, PostgresBackend, cfg.Type)
	assert.Equal(t, 4, cfg.DBMaxConnections)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{Type: SQLiteBackend}.Validate())
	assert.Error(t, Config{Type: PostgresBackend}.Validate())
	assert.NoError(t, Config{Type: MemoryBackend}.Validate())
	assert.Len(t, GetBackendTypes(), 3)
}

func TestCreateSQLiteBackendAnnouncesWrites(t *testing.T) {
	ctx := context.Background()
	b, err := NewFactory(log.Discard()).CreateBackend(ctx, Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "bills.db"),
	})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Ping(ctx))

	u := &core.User{Email: "a@example.com", PasswordHash: "x"}
	require.NoError(t, b.Users.CreateUser(ctx, u))

	feed, cancel := b.Broker.ForUser(u.ID).Subscribe(remote.TableCustomCategories)
	defer cancel()

	require.NoError(t, b.Categories.InsertCategory(ctx, u.ID, "gym"))
	select {
	case <-feed:
	case <-time.After(time.Second):
		t.Fatal("expected change signal")
	}
}

func TestMemoryBackendRunReturnsOnCancel(t *testing.T) {
	b, err := NewFactory(log.Discard()).CreateBackend(context.Background(), Config{Type: MemoryBackend})
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, b.Run(ctx))
	assert.Nil(t, b.AMQP)
}
