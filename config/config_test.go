package config_test

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payments-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load([]string{"tx.csv"})
	require.NoError(t, err)

	assert.Equal(t, "tx.csv", cfg.InputPath)
	assert.False(t, cfg.Debug)
	assert.False(t, cfg.StopOnError, "continue is the default policy")
	assert.Equal(t, "csv", cfg.Format)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Empty(t, cfg.LogFile)
	assert.Empty(t, cfg.StateLog)
}

func TestLoad_Flags(t *testing.T) {
	cfg, err := config.Load([]string{
		"-d", "--stop-on-error", "--logfile", "run.log", "--statelog=state.json",
		"--format", "TABLE", "--store", "sqlite", "--db", "ledger.db", "tx.csv",
	})
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.True(t, cfg.StopOnError)
	assert.Equal(t, "run.log", cfg.LogFile)
	assert.Equal(t, "state.json", cfg.StateLog)
	assert.Equal(t, "table", cfg.Format)
	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, "ledger.db", cfg.DBPath)
}

func TestLoad_UnderscoreFlags(t *testing.T) {
	cfg, err := config.Load([]string{"--stop_on_error", "tx.csv"})
	require.NoError(t, err)
	assert.True(t, cfg.StopOnError)
}

func TestLoad_EnvironmentFallback(t *testing.T) {
	t.Setenv("PAYMENTS_DEBUG", "true")
	t.Setenv("PAYMENTS_STOP_ON_ERROR", "1")
	t.Setenv("PAYMENTS_FORMAT", "table")
	t.Setenv("PAYMENTS_STATELOG", "dump.json")

	cfg, err := config.Load([]string{"tx.csv"})
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.StopOnError)
	assert.Equal(t, "table", cfg.Format)
	assert.Equal(t, "dump.json", cfg.StateLog)
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("PAYMENTS_STOP_ON_ERROR", "true")

	cfg, err := config.Load([]string{"--stop-on-error=false", "tx.csv"})
	require.NoError(t, err)
	assert.False(t, cfg.StopOnError)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string][]string{
		"missing input":  {},
		"two inputs":     {"a.csv", "b.csv"},
		"bad format":     {"--format", "xml", "tx.csv"},
		"bad store":      {"--store", "postgres", "tx.csv"},
		"sqlite no path": {"--store", "sqlite", "--db", "", "tx.csv"},
		"unknown flag":   {"--verbose", "tx.csv"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(args)
			assert.Error(t, err)
		})
	}
}

func TestLoad_BadEnvironmentBool(t *testing.T) {
	t.Setenv("PAYMENTS_DEBUG", "sometimes")
	_, err := config.Load([]string{"tx.csv"})
	assert.ErrorContains(t, err, "PAYMENTS_DEBUG")
}

func TestLoad_Help(t *testing.T) {
	_, err := config.Load([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}
