package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jupyter-proxy-apps/internal/config"
	"jupyter-proxy-apps/internal/listener"
	"jupyter-proxy-apps/internal/logging"
	"jupyter-proxy-apps/internal/model"
)

func boardConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{Board: config.BoardConfig{
		Driver:      "sqlite",
		SQLitePath:  filepath.Join(t.TempDir(), "comments.db"),
		PersistMode: "sync",
		ListLimit:   100,
	}}
}

func TestNewBoardMigratesSQLite(t *testing.T) {
	a, err := New(context.Background(), boardConfig(t), logging.Discard(), ServiceBoard, listener.Address{Port: 8000})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.DB)
	assert.True(t, a.DB.Migrator().HasTable(&model.Comment{}))
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.MQConn)
	assert.Nil(t, a.CommentCache())
}

func TestNewBoardWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := boardConfig(t)
	cfg.Redis = config.RedisConfig{Addr: mr.Addr(), CommentsTTLSeconds: 30}

	a, err := New(context.Background(), cfg, logging.Discard(), ServiceBoard, listener.Address{})
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Redis)
	assert.NotNil(t, a.CommentCache())
}

func TestNewBoardRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := boardConfig(t)
	cfg.Redis.Addr = addr
	_, err := New(context.Background(), cfg, logging.Discard(), ServiceBoard, listener.Address{})
	assert.Error(t, err)
}

func TestNewWithoutStores(t *testing.T) {
	for _, service := range []string{ServiceBookmarks, ServiceNotes, ServiceTypewords} {
		a, err := New(context.Background(), &config.Config{}, logging.Discard(), service, listener.Address{})
		require.NoError(t, err, service)
		assert.Nil(t, a.DB)
		assert.NoError(t, a.Close())
	}

	_, err := New(context.Background(), &config.Config{}, logging.Discard(), "chat", listener.Address{})
	assert.Error(t, err)
}
