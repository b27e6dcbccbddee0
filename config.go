package domainwatch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/domainwatch/domainwatch/check"
	"github.com/domainwatch/domainwatch/dataset"
	"github.com/domainwatch/domainwatch/db"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "yaml"
	envPrefix  = "DOMAINWATCH"
)

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or mysql
	DSN    string `mapstructure:"dsn"`    // File path for sqlite, relative paths live in the config dir
}

// RateLimitConfig holds requests per minute allowed for a single client IP.
type RateLimitConfig struct {
	Default int `mapstructure:"default"`
	Check   int `mapstructure:"check"`
}

type NVDConfig struct {
	URL            string `mapstructure:"url"`
	APIKey         string `mapstructure:"api_key"`
	ResultsPerPage int    `mapstructure:"results_per_page"`
	Disabled       bool   `mapstructure:"disabled"`
}

type CheckConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	Workers   int           `mapstructure:"workers"`
	Resolver  string        `mapstructure:"resolver"`  // Empty uses /etc/resolv.conf
	Waypoints []string      `mapstructure:"waypoints"` // "host:port=override:port" entries
	MaxBatch  int           `mapstructure:"max_batch"`
}

type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

type ScopeConfig struct {
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

// Config is the service configuration read from config.yaml in the config dir.
type Config struct {
	viper         *viper.Viper
	ConfigDir     string          `mapstructure:"-"`
	ListenAddress string          `mapstructure:"listen_address"`
	ListenPort    string          `mapstructure:"listen_port"`
	Dataset       string          `mapstructure:"dataset"` // File path or http(s) URL
	Database      DatabaseConfig  `mapstructure:"database"`
	CacheTTL      time.Duration   `mapstructure:"cache_ttl"`     // Reports younger than this are served from the cache
	CacheMaxAge   time.Duration   `mapstructure:"cache_max_age"` // Cache-Control max-age of check responses
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
	CORSOrigins   []string        `mapstructure:"cors_origins"`
	DefaultTLD    string          `mapstructure:"default_tld"`
	NVD           NVDConfig       `mapstructure:"nvd"`
	Check         CheckConfig     `mapstructure:"check"`
	ProxyProtocol bool            `mapstructure:"proxy_protocol"`
	TLS           TLSConfig       `mapstructure:"tls"`
	Scope         ScopeConfig     `mapstructure:"scope"`
}

// DefaultConfig returns the configuration used when no config file overrides it.
func DefaultConfig() *Config {
	return &Config{
		ListenAddress: "127.0.0.1",
		ListenPort:    "8080",
		Dataset:       "domains.json",
		Database:      DatabaseConfig{Driver: db.DriverSQLite, DSN: "domainwatch.db"},
		CacheTTL:      5 * time.Minute,
		CacheMaxAge:   time.Hour,
		RateLimit:     RateLimitConfig{Default: 100, Check: 10},
		CORSOrigins:   []string{"*"},
		DefaultTLD:    "pt",
		NVD: NVDConfig{
			URL:            check.DefaultNVDURL,
			ResultsPerPage: check.DefaultResultsPerPage,
		},
		Check: CheckConfig{
			Timeout:   check.DefaultTimeout,
			Workers:   check.DefaultWorkers,
			Waypoints: []string{},
			MaxBatch:  50,
		},
		Scope: ScopeConfig{Include: []string{}, Exclude: []string{}},
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("listen_address", cfg.ListenAddress)
	v.SetDefault("listen_port", cfg.ListenPort)
	v.SetDefault("dataset", cfg.Dataset)
	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.dsn", cfg.Database.DSN)
	v.SetDefault("cache_ttl", cfg.CacheTTL.String())
	v.SetDefault("cache_max_age", cfg.CacheMaxAge.String())
	v.SetDefault("rate_limit.default", cfg.RateLimit.Default)
	v.SetDefault("rate_limit.check", cfg.RateLimit.Check)
	v.SetDefault("cors_origins", cfg.CORSOrigins)
	v.SetDefault("default_tld", cfg.DefaultTLD)
	v.SetDefault("nvd.url", cfg.NVD.URL)
	v.SetDefault("nvd.api_key", cfg.NVD.APIKey)
	v.SetDefault("nvd.results_per_page", cfg.NVD.ResultsPerPage)
	v.SetDefault("nvd.disabled", cfg.NVD.Disabled)
	v.SetDefault("check.timeout", cfg.Check.Timeout.String())
	v.SetDefault("check.workers", cfg.Check.Workers)
	v.SetDefault("check.resolver", cfg.Check.Resolver)
	v.SetDefault("check.waypoints", cfg.Check.Waypoints)
	v.SetDefault("check.max_batch", cfg.Check.MaxBatch)
	v.SetDefault("proxy_protocol", cfg.ProxyProtocol)
	v.SetDefault("tls.cert_file", cfg.TLS.CertFile)
	v.SetDefault("tls.key_file", cfg.TLS.KeyFile)
	v.SetDefault("scope.include", cfg.Scope.Include)
	v.SetDefault("scope.exclude", cfg.Scope.Exclude)
}

// LoadConfig reads config.yaml from configDir, creating the directory and a file holding the
// defaults on first run. Environment variables prefixed with DOMAINWATCH_ override file values,
// e.g. DOMAINWATCH_RATE_LIMIT_CHECK.
func LoadConfig(configDir string) (*Config, error) {
	_, err := os.ReadDir(configDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("checking if directory exists %s : %w", configDir, err)
		}
		if err := os.MkdirAll(configDir, 0700); err != nil {
			return nil, fmt.Errorf("creating config dir %s : %w", configDir, err)
		}
	}

	cfg := DefaultConfig()
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file : %w", err)
		}
		if err := v.SafeWriteConfig(); err != nil {
			return nil, fmt.Errorf("writing config file : %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	cfg.viper = v
	cfg.ConfigDir = configDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (cfg *Config) Validate() error {
	switch cfg.Database.Driver {
	case db.DriverSQLite, db.DriverMySQL:
	default:
		return fmt.Errorf("database driver should be either %s or %s, got %q", db.DriverSQLite, db.DriverMySQL, cfg.Database.Driver)
	}
	if cfg.CacheTTL < 0 || cfg.CacheMaxAge < 0 {
		return errors.New("cache_ttl and cache_max_age cannot be negative")
	}
	if cfg.RateLimit.Default < 0 || cfg.RateLimit.Check < 0 {
		return errors.New("rate limits cannot be negative")
	}
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return errors.New("tls.cert_file and tls.key_file must be set together")
	}
	if _, err := cfg.waypoints(); err != nil {
		return err
	}
	return nil
}

// Address returns the host:port the server listens on.
func (cfg *Config) Address() string {
	return net.JoinHostPort(cfg.ListenAddress, cfg.ListenPort)
}

// Set updates a single key and persists the config file.
func (cfg *Config) Set(key string, value any) error {
	if cfg.viper == nil {
		return errors.New("config was not loaded from a config dir")
	}
	cfg.viper.Set(key, value)
	if err := cfg.viper.WriteConfig(); err != nil {
		return fmt.Errorf("failed to save configuration : %w", err)
	}
	if err := cfg.viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	return nil
}

// resolvePath makes relative paths relative to the config dir.
func (cfg *Config) resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || cfg.ConfigDir == "" || dataset.IsRemote(path) {
		return path
	}
	return filepath.Join(cfg.ConfigDir, path)
}

func (cfg *Config) waypoints() (map[string]string, error) {
	waypoints := make(map[string]string, len(cfg.Check.Waypoints))
	for _, entry := range cfg.Check.Waypoints {
		hostPort, override, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("waypoint %q should be host:port=override:port", entry)
		}
		waypoints[strings.TrimSpace(hostPort)] = strings.TrimSpace(override)
	}
	return waypoints, nil
}

// OpenRepository connects to the configured database and runs the migrations.
func (cfg *Config) OpenRepository() (*db.Repository, error) {
	dsn := cfg.Database.DSN
	if cfg.Database.Driver == db.DriverSQLite {
		dsn = cfg.resolvePath(dsn)
	}
	conn, err := db.New(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database : %w", cfg.Database.Driver, err)
	}
	return db.NewRepository(conn), nil
}

// LoadDataset loads the configured dataset.
func (cfg *Config) LoadDataset(ctx context.Context, client *http.Client) (*dataset.Dataset, error) {
	return dataset.Load(ctx, cfg.resolvePath(cfg.Dataset), client)
}

// NewChecker builds a checker from the check, scope and nvd sections.
func (cfg *Config) NewChecker(logger *slog.Logger) (*check.Checker, error) {
	scope, err := check.NewScopeFromRules(cfg.Scope.Include, cfg.Scope.Exclude)
	if err != nil {
		return nil, fmt.Errorf("building scope : %w", err)
	}
	waypoints, err := cfg.waypoints()
	if err != nil {
		return nil, err
	}

	options := []func(*check.Checker) error{
		check.WithLogger(logger),
		check.WithTimeout(cfg.Check.Timeout),
		check.WithWorkers(cfg.Check.Workers),
		check.WithResolver(cfg.Check.Resolver),
		check.WithWaypoints(waypoints),
		check.WithScope(scope),
	}
	if !cfg.NVD.Disabled {
		options = append(options, check.WithNVD(check.NewNVDClient(cfg.NVD.URL, cfg.NVD.APIKey, cfg.NVD.ResultsPerPage)))
	}
	return check.New(options...)
}

// LoadTLS loads the configured certificate, it returns nil when TLS is not configured.
func (cfg *Config) LoadTLS() (*tls.Config, error) {
	if cfg.TLS.CertFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.resolvePath(cfg.TLS.CertFile), cfg.resolvePath(cfg.TLS.KeyFile))
	if err != nil {
		return nil, fmt.Errorf("loading tls key pair : %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"http/1.1"},
	}, nil
}
