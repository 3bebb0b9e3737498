// Package config loads bruty's configuration through spf13/viper,
// merging built-in defaults, an optional bruty.yaml discovered near
// the repository root, BRUTY_-prefixed environment variables, and
// finally any runtime overrides a caller supplies to Load.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/skifli/bruty/pkg/admission"
	"github.com/spf13/viper"
)

// ServerConfig configures the coordinator's HTTP side channel.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures internal/observability.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// MetricsConfig holds metrics exporter settings. It is loaded but not
// read by any package; no /metrics handler is mounted.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig holds the health-endpoint switch. It is loaded but not
// read by any package; internal/server always mounts the health routes.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig holds debug and pprof switches. It is loaded but not read
// by any package; pprof handlers are never registered.
type DebugConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// CoordinatorConfig parameterizes one enumeration run.
type CoordinatorConfig struct {
	StartingPrefix    string           `mapstructure:"starting_prefix"`
	CoordinatorLength int              `mapstructure:"coordinator_length"`
	StatePath         string           `mapstructure:"state_path"`
	StoreBackend      string           `mapstructure:"store_backend"` // "file", "badger", or "s3"
	Users             []admission.User `mapstructure:"users"`
}

// WorkerConfig parameterizes a worker's connection to a coordinator.
type WorkerConfig struct {
	CoordinatorURL string `mapstructure:"coordinator_url"`
	UserID         uint8  `mapstructure:"user_id"`
	Secret         string `mapstructure:"secret"`
	Concurrency    int    `mapstructure:"concurrency"`
	ClientVersion  string `mapstructure:"client_version"`
	OracleEndpoint string `mapstructure:"oracle_endpoint"`
}

// Config is the fully resolved configuration for either binary; each
// loads it once at startup and reads only the section it cares about.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Health      HealthConfig      `mapstructure:"health"`
	Debug       DebugConfig       `mapstructure:"debug"`
	Workers     int               `mapstructure:"workers"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Worker      WorkerConfig      `mapstructure:"worker"`
}

const envPrefix = "BRUTY"

var (
	configMu    sync.Mutex
	appConfig   *Config
	appIdentity string // set to non-empty once Load has run once, gating getEnvSpecs/getUserConfigPaths
)

type envSpec struct {
	Name string
	Path string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)

	v.SetDefault("workers", 4)

	v.SetDefault("coordinator.coordinator_length", 8)
	v.SetDefault("coordinator.store_backend", "file")

	v.SetDefault("worker.concurrency", 256)
	v.SetDefault("worker.client_version", "1.0")
	v.SetDefault("worker.oracle_endpoint", "https://noembed.com/embed?url=https://example.com/%s")
}

// getEnvSpecs lists the BRUTY_-prefixed environment variables Load
// binds, for diagnostics (e.g. a `doctor` subcommand printing what it
// would read). Returns empty until Load has run once.
func getEnvSpecs() []envSpec {
	configMu.Lock()
	defer configMu.Unlock()
	if appIdentity == "" {
		return nil
	}
	return []envSpec{
		{Name: envPrefix + "_HOST", Path: "server.host"},
		{Name: envPrefix + "_PORT", Path: "server.port"},
		{Name: envPrefix + "_READ_TIMEOUT", Path: "server.read_timeout"},
		{Name: envPrefix + "_WRITE_TIMEOUT", Path: "server.write_timeout"},
		{Name: envPrefix + "_IDLE_TIMEOUT", Path: "server.idle_timeout"},
		{Name: envPrefix + "_SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
		{Name: envPrefix + "_LOG_LEVEL", Path: "logging.level"},
		{Name: envPrefix + "_LOG_PROFILE", Path: "logging.profile"},
		{Name: envPrefix + "_METRICS_ENABLED", Path: "metrics.enabled"},
		{Name: envPrefix + "_METRICS_PORT", Path: "metrics.port"},
		{Name: envPrefix + "_HEALTH_ENABLED", Path: "health.enabled"},
		{Name: envPrefix + "_WORKERS", Path: "workers"},
		{Name: envPrefix + "_COORDINATOR_URL", Path: "worker.coordinator_url"},
		{Name: envPrefix + "_USER_ID", Path: "worker.user_id"},
		{Name: envPrefix + "_SECRET", Path: "worker.secret"},
	}
}

func bindEnv(v *viper.Viper) {
	for _, spec := range []envSpec{
		{envPrefix + "_HOST", "server.host"},
		{envPrefix + "_PORT", "server.port"},
		{envPrefix + "_READ_TIMEOUT", "server.read_timeout"},
		{envPrefix + "_WRITE_TIMEOUT", "server.write_timeout"},
		{envPrefix + "_IDLE_TIMEOUT", "server.idle_timeout"},
		{envPrefix + "_SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
		{envPrefix + "_LOG_LEVEL", "logging.level"},
		{envPrefix + "_LOG_PROFILE", "logging.profile"},
		{envPrefix + "_METRICS_ENABLED", "metrics.enabled"},
		{envPrefix + "_METRICS_PORT", "metrics.port"},
		{envPrefix + "_HEALTH_ENABLED", "health.enabled"},
		{envPrefix + "_WORKERS", "workers"},
		{envPrefix + "_COORDINATOR_URL", "worker.coordinator_url"},
		{envPrefix + "_USER_ID", "worker.user_id"},
		{envPrefix + "_SECRET", "worker.secret"},
	} {
		_ = v.BindEnv(spec.Path, spec.Name)
	}
}

// getUserConfigPaths lists the per-user directory where a bruty.yaml
// may live, for diagnostics. Load itself does not search it: it reads
// bruty.yaml only from the discovered project root. Returns empty until
// Load has run once.
func getUserConfigPaths() []string {
	configMu.Lock()
	defer configMu.Unlock()
	if appIdentity == "" {
		return nil
	}
	if home, err := os.UserHomeDir(); err == nil {
		return []string{filepath.Join(home, ".config", "bruty")}
	}
	return nil
}

// findProjectRoot walks up from the working directory looking for
// go.mod, honoring BRUTY_WORKSPACE_ROOT or GITHUB_WORKSPACE as an
// explicit boundary hint when CI or GITHUB_ACTIONS is set — a simplified descendant of the
// teacher's workspace-boundary detection for containerized CI
// checkouts that live outside $HOME.
func findProjectRoot() (string, error) {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		for _, hint := range []string{os.Getenv("BRUTY_WORKSPACE_ROOT"), os.Getenv("GITHUB_WORKSPACE")} {
			if hint == "" || !filepath.IsAbs(hint) {
				continue
			}
			if _, err := os.Stat(filepath.Join(hint, "go.mod")); err == nil {
				return hint, nil
			}
		}
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("config: getwd: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir, nil // fall back to cwd rather than fail the whole load
		}
		dir = parent
	}
}

// Load resolves Config from defaults, an optional bruty.yaml, BRUTY_
// environment variables, and overrides (runtime values win over
// everything else). The result is cached for GetConfig.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	root, err := findProjectRoot()
	if err == nil {
		v.SetConfigName("bruty")
		v.SetConfigType("yaml")
		v.AddConfigPath(root)
		_ = v.ReadInConfig() // absent config file is fine; defaults stand
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	for _, override := range overrides {
		for k, val := range override {
			v.Set(k, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	configMu.Lock()
	appIdentity = "bruty"
	appConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// GetConfig returns the most recently Loaded Config, or nil if Load
// has not been called yet.
func GetConfig() *Config {
	configMu.Lock()
	defer configMu.Unlock()
	return appConfig
}
