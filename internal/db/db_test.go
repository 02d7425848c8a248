package db

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"forumcore/internal/config"
	"forumcore/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name()),
	}
}

func TestOpenMigrateSeed(t *testing.T) {
	gdb, err := Open(openMemory(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(gdb) })

	require.NoError(t, Migrate(gdb))
	require.NoError(t, Migrate(gdb), "migrations are repeatable")
	require.NoError(t, Ping(context.Background(), gdb))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, SeedTopics(gdb, log))
	require.NoError(t, SeedTopics(gdb, log))

	var count int64
	require.NoError(t, gdb.Model(&models.Topic{}).Count(&count).Error)
	assert.EqualValues(t, 5, count, "seeding twice does not duplicate topics")
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql", DSN: "x"})
	assert.Error(t, err)
}
