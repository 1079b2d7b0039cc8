package config_test

import (
	"testing"
	"time"

	"github.com/jhoicas/dte-sii/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValoresPorDefecto(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "cert", cfg.SII.Environment)
	assert.Equal(t, 30*time.Second, cfg.SII.HTTPTimeout())
	assert.Equal(t, 4, cfg.SII.SignWorkers)
	assert.Equal(t, "./caf", cfg.SII.CAFDir)
	assert.Empty(t, cfg.SII.MetricsPushURL)
}

func TestLoad_VariablesSII(t *testing.T) {
	t.Setenv("SII_ENVIRONMENT", "prod")
	t.Setenv("SII_ISSUER_RUT", "76086428-5")
	t.Setenv("SII_SENDER_RUT", "12345678-5")
	t.Setenv("SII_RESOLUTION_NUMBER", "80")
	t.Setenv("SII_RESOLUTION_DATE", "2014-08-22")
	t.Setenv("SII_HTTP_TIMEOUT_SECONDS", "10")
	t.Setenv("SII_SIGN_WORKERS", "0")
	t.Setenv("SII_METRICS_PUSH_URL", "http://pushgateway:9091")
	t.Setenv("DATABASE_URL", "postgres://dte@db/dte")
	t.Setenv("DB_MAX_CONNS", "4")
	t.Setenv("DB_MIN_CONNS", "8")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.SII.Environment)
	assert.Equal(t, "76086428-5", cfg.SII.IssuerRUT)
	assert.Equal(t, "12345678-5", cfg.SII.SenderRUT)
	assert.Equal(t, 80, cfg.SII.ResolutionNumber)
	assert.Equal(t, "2014-08-22", cfg.SII.ResolutionDate)
	assert.Equal(t, 10*time.Second, cfg.SII.HTTPTimeout())
	assert.Equal(t, 1, cfg.SII.SignWorkers)
	assert.Equal(t, "http://pushgateway:9091", cfg.SII.MetricsPushURL)
	assert.Equal(t, "postgres://dte@db/dte", cfg.DB.ConnectionString())
	assert.Equal(t, int32(4), cfg.DB.MaxConns)
	assert.Equal(t, int32(4), cfg.DB.MinConns, "el mínimo no supera al máximo")
}

func TestDBConfig_DSN(t *testing.T) {
	c := config.DBConfig{Host: "db", Port: 5432, User: "dte", Password: "p@ss:word", DBName: "dte_sii", SSLMode: "require"}
	assert.Equal(t, "postgres://dte:p%40ss%3Aword@db:5432/dte_sii?sslmode=require", c.ConnectionString())
}

func TestLoad_AmbienteInvalido(t *testing.T) {
	t.Setenv("SII_ENVIRONMENT", "maullin")
	_, err := config.Load()
	assert.Error(t, err)
}
