// Package config loads runtime configuration from the environment, with an
// optional .env file. Values flow through explicit structs passed into the
// run supervisor at construction; there is no ambient global configuration,
// so concurrent runs with different settings coexist safely.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Runtime is the environment-driven configuration consumed by the example
// binaries. Library users are free to ignore it and populate runner options
// directly.
type Runtime struct {
	// Provider selects the model adapter: "anthropic", "openai" or "mock".
	Provider string `envconfig:"PROVIDER" default:"anthropic"`
	// Model overrides the provider's default model id.
	Model string `envconfig:"MODEL"`
	// APIKey authenticates against the selected provider.
	APIKey string `envconfig:"API_KEY"`

	// IterationCap bounds loop iterations per run.
	IterationCap int `envconfig:"ITERATION_CAP" default:"10"`
	// Timeout is the per-run wall-clock deadline.
	Timeout time.Duration `envconfig:"TIMEOUT" default:"2m"`

	// BudgetTokens and BudgetMessages configure the condensation trigger;
	// zero disables the corresponding threshold.
	BudgetTokens   int `envconfig:"BUDGET_TOKENS"`
	BudgetMessages int `envconfig:"BUDGET_MESSAGES"`
	// BudgetKeep is how many recent messages condensation preserves.
	BudgetKeep int `envconfig:"BUDGET_KEEP" default:"4"`

	// PostgresDSN, when set, enables run archiving to PostgreSQL.
	PostgresDSN string `envconfig:"POSTGRES_DSN"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// LogPretty switches from JSON to human-readable console output.
	LogPretty bool `envconfig:"LOG_PRETTY" default:"false"`
}

// MustLoad is Load that panics on failure, for main() wiring.
func MustLoad[T any](prefix string) *T {
	conf, err := Load[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

// Load populates a configuration struct of type T from the environment.
// A .env file in the working directory is merged in first when present.
// prefix namespaces the variables (e.g. "PLANLOOP" reads PLANLOOP_API_KEY).
func Load[T any](prefix string) (*T, error) {
	if err := loadEnvFileIfExists(".env"); err != nil {
		return nil, fmt.Errorf("load .env file: %w", err)
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// LoadFile is Load with an explicit env file path; the file must exist.
func LoadFile[T any](prefix, path string) (*T, error) {
	if err := loadEnvFile(path); err != nil {
		return nil, fmt.Errorf("load env file %s: %w", path, err)
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

func loadEnvFileIfExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return loadEnvFile(path)
}

// loadEnvFile exports the file's settings into the process environment so
// envconfig sees them alongside real environment variables. Existing
// variables win over file values.
func loadEnvFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for key, value := range v.AllSettings() {
		name := strings.ToUpper(key)
		if _, exists := os.LookupEnv(name); exists {
			continue
		}
		if err := os.Setenv(name, fmt.Sprint(value)); err != nil {
			return err
		}
	}
	return nil
}
