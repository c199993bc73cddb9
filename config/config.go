/*
Package config loads the command surface of the payments binary.

SOURCES (later wins):
  1. Built-in defaults
  2. PAYMENTS_* environment variables
  3. Command-line flags

FLAGS:
  payments [flags] <input.csv>

  -d, --debug          Debug logging                 PAYMENTS_DEBUG
      --stop-on-error  Abort on the first bad record PAYMENTS_STOP_ON_ERROR
      --logfile PATH   JSON logs to PATH             PAYMENTS_LOGFILE
      --statelog PATH  Full-state JSON dump to PATH  PAYMENTS_STATELOG
      --format FMT     csv | table                   PAYMENTS_FORMAT
      --store KIND     memory | sqlite               PAYMENTS_STORE
      --db PATH        SQLite path                   PAYMENTS_DB

  Underscores in flag names are accepted (--stop_on_error).
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
)

const (
	defaultFormat = "csv"
	defaultStore  = "memory"
	defaultDB     = ":memory:"
)

// Config is the validated runtime configuration.
type Config struct {
	InputPath   string `validate:"required"`
	Debug       bool
	StopOnError bool
	LogFile     string
	StateLog    string
	Format      string `validate:"oneof=csv table"`
	Store       string `validate:"oneof=memory sqlite"`
	DBPath      string `validate:"required_if=Store sqlite"`
}

var validate = validator.New()

// Load builds a Config from args (without the program name) and the
// environment. It returns pflag.ErrHelp when help was requested.
func Load(args []string) (Config, error) {
	cfg := Config{
		LogFile:  os.Getenv("PAYMENTS_LOGFILE"),
		StateLog: os.Getenv("PAYMENTS_STATELOG"),
		Format:   strings.ToLower(getEnv("PAYMENTS_FORMAT", defaultFormat)),
		Store:    strings.ToLower(getEnv("PAYMENTS_STORE", defaultStore)),
		DBPath:   getEnv("PAYMENTS_DB", defaultDB),
	}

	var err error
	if cfg.Debug, err = getEnvBool("PAYMENTS_DEBUG", false); err != nil {
		return Config{}, err
	}
	if cfg.StopOnError, err = getEnvBool("PAYMENTS_STOP_ON_ERROR", false); err != nil {
		return Config{}, err
	}

	fs := pflag.NewFlagSet("payments", pflag.ContinueOnError)
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: payments [flags] <input.csv>")
		fs.PrintDefaults()
	}

	fs.BoolVarP(&cfg.Debug, "debug", "d", cfg.Debug, "enable debug logging")
	fs.BoolVar(&cfg.StopOnError, "stop-on-error", cfg.StopOnError, "abort the run on the first failed record")
	fs.StringVar(&cfg.LogFile, "logfile", cfg.LogFile, "write JSON logs to this file instead of stderr")
	fs.StringVar(&cfg.StateLog, "statelog", cfg.StateLog, "write a full-state JSON dump to this file")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "report format: csv or table")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "ledger backend: memory or sqlite")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, `SQLite database path (":memory:" for in-memory)`)

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	switch fs.NArg() {
	case 0:
	case 1:
		cfg.InputPath = fs.Arg(0)
	default:
		return Config{}, fmt.Errorf("expected one input path, got %d", fs.NArg())
	}

	cfg.Format = strings.ToLower(cfg.Format)
	cfg.Store = strings.ToLower(cfg.Store)

	if err := validate.Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
