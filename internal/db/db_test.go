package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parking-access-backend/config"
	"parking-access-backend/internal/model"
)

func TestInit_SQLiteMigrates(t *testing.T) {
	cfg := &config.DatabaseConfig{Driver: "sqlite", DSN: "file:db_init_test?mode=memory&cache=shared"}

	gormDB, err := Init(cfg, config.LogConfig{SlowQueryMillis: 200}, zap.NewNop())
	require.NoError(t, err)

	m := gormDB.Migrator()
	assert.True(t, m.HasTable(&model.AccessEvent{}))
	assert.True(t, m.HasTable(&model.Vehicle{}))
	assert.True(t, m.HasTable(&model.PushSubscription{}))
	assert.True(t, m.HasTable("subscription_vehicle_mapping"))
	assert.True(t, m.HasIndex(&model.AccessEvent{}, "idx_access_events_vehicle_time"))

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestInit_UnsupportedDriver(t *testing.T) {
	_, err := Init(&config.DatabaseConfig{Driver: "mysql", DSN: "x"}, config.LogConfig{}, zap.NewNop())
	assert.Error(t, err)
}
