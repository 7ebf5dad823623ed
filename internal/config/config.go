package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultCredentialsFile = "serviceAccountKey.json"
	DefaultCollection      = "questionpaperpdfs"
	DefaultTimeout         = 30 * time.Second
	DefaultLogLevel        = "info"

	envPrefix = "PDFINGEST"
)

// Flag names, also used as viper keys.
const (
	KeyCredentials = "credentials"
	KeyProject     = "project"
	KeyCollection  = "collection"
	KeyURLs        = "urls"
	KeyTimeout     = "timeout"
	KeyMetricsFile = "metrics-file"
	KeyLogLevel    = "log-level"
	KeyFailOnError = "fail-on-error"
)

// Config holds everything a run needs.
type Config struct {
	CredentialsFile string        // Service account key JSON
	ProjectID       string        // Empty means detect from credentials
	Collection      string        // Firestore collection holding the records
	URLFile         string        // Optional URL list file
	Timeout         time.Duration // Per store operation, 0 disables
	MetricsFile     string        // Optional Prometheus textfile output
	LogLevel        zapcore.Level
	FailOnError     bool
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(KeyCredentials, "k", DefaultCredentialsFile, "Path to the service account key file")
	fs.StringP(KeyProject, "p", "", "Project ID (detected from credentials when empty)")
	fs.String(KeyCollection, DefaultCollection, "Collection that holds the PDF records")
	fs.StringP(KeyURLs, "u", "", "File with one PDF URL per line (built-in list when empty)")
	fs.Duration(KeyTimeout, DefaultTimeout, "Timeout for each store operation (0 disables)")
	fs.String(KeyMetricsFile, "", "Write Prometheus metrics to this file after the run")
	fs.String(KeyLogLevel, DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.Bool(KeyFailOnError, false, "Exit non-zero when any URL fails")
}

// Load resolves the configuration from flags, PDFINGEST_* environment
// variables and a .env file in the working directory, in that order of
// precedence. A missing .env file is fine; an unreadable or malformed one
// is an error.
func Load(fs *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// The generic Google variables are honored after the prefixed ones.
	if err := v.BindEnv(KeyCredentials, envPrefix+"_CREDENTIALS", "GOOGLE_APPLICATION_CREDENTIALS"); err != nil {
		return nil, err
	}
	if err := v.BindEnv(KeyProject, envPrefix+"_PROJECT", "GOOGLE_CLOUD_PROJECT"); err != nil {
		return nil, err
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetDefault(KeyCredentials, DefaultCredentialsFile)
	v.SetDefault(KeyCollection, DefaultCollection)
	v.SetDefault(KeyTimeout, DefaultTimeout)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)

	level, err := zapcore.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyLogLevel, err)
	}

	cfg := &Config{
		CredentialsFile: v.GetString(KeyCredentials),
		ProjectID:       v.GetString(KeyProject),
		Collection:      v.GetString(KeyCollection),
		URLFile:         v.GetString(KeyURLs),
		Timeout:         v.GetDuration(KeyTimeout),
		MetricsFile:     v.GetString(KeyMetricsFile),
		LogLevel:        level,
		FailOnError:     v.GetBool(KeyFailOnError),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first problem that would prevent a run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Collection) == "" {
		return fmt.Errorf("%s must not be empty", KeyCollection)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%s must not be negative, got %s", KeyTimeout, c.Timeout)
	}
	if os.Getenv("FIRESTORE_EMULATOR_HOST") != "" {
		return nil
	}
	if c.CredentialsFile == "" {
		return fmt.Errorf("%s must be set", KeyCredentials)
	}
	if _, err := os.Stat(c.CredentialsFile); err != nil {
		return fmt.Errorf("credentials not accessible at %q: %w", c.CredentialsFile, err)
	}
	return nil
}
