package main

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aiva-app/notify/internal/app"
	"github.com/aiva-app/notify/internal/push"
)

func TestConvertDatabaseConfigDefaultsToSQLite(t *testing.T) {
	cfg := &app.Config{}

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "sqlite", dbCfg.Driver)
}

func TestConvertDatabaseConfigPostgres(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = "PostgreSQL"
	cfg.Database.Postgres.Host = " db.internal "
	cfg.Database.Postgres.Port = 5433
	cfg.Database.Postgres.Database = "notify"
	cfg.Database.Postgres.Username = "aiva"
	cfg.Database.Postgres.Password = "secret"

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.internal", dbCfg.Host)
	require.Equal(t, 5433, dbCfg.Port)
	require.Equal(t, "notify", dbCfg.Name)
}

func TestSelectGatewayFallsBackToLog(t *testing.T) {
	cfg := &app.Config{}

	gateway, err := selectGateway(cfg, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &push.LogGateway{}, gateway)
}

func TestSelectGatewayRequiresServerKey(t *testing.T) {
	cfg := &app.Config{}
	cfg.Push.FCM.Enabled = true

	_, err := selectGateway(cfg, zap.NewNop())
	require.Error(t, err)
}
