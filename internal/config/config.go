package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/version"
)

// Search backends.
const (
	BackendSolr        = "solr"
	BackendBleve       = "bleve"
	BackendRediSearch  = "redisearch"
	BackendMeilisearch = "meilisearch"
)

// Config holds the libcat service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Search   SearchConfig   `yaml:"search"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Features FeaturesConfig `yaml:"features"`
	OAI      OAIConfig      `yaml:"oai"`
	SRU      SRUConfig      `yaml:"sru"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// APIKey maps a bearer key to a principal.
type APIKey struct {
	Key   string `yaml:"key"`
	Login string `yaml:"login"`
	Role  string `yaml:"role"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys   []APIKey `yaml:"api_keys"`
	JWTSecret string   `yaml:"jwt_secret"`
	LoginURL  string   `yaml:"login_url"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the session store connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// SessionConfig holds visitor session settings.
type SessionConfig struct {
	CookieName string `yaml:"cookie_name"`
	TTLSec     int    `yaml:"ttl_sec"`
	KeyPrefix  string `yaml:"key_prefix"`
}

// TTL returns the session lifetime.
func (s SessionConfig) TTL() time.Duration { return time.Duration(s.TTLSec) * time.Second }

// SearchConfig holds index backend and result window settings.
type SearchConfig struct {
	Backend            string `yaml:"backend"`
	URL                string `yaml:"url"`
	APIKey             string `yaml:"api_key"`
	Index              string `yaml:"index"`
	Path               string `yaml:"path"` // bleve on-disk path, empty = in-memory
	MaxNumberOfResults int    `yaml:"max_number_of_results"`
	PerPage            int    `yaml:"per_page"`
	CSVPerPage         int    `yaml:"csv_per_page"`
	TimeoutSec         int    `yaml:"timeout_sec"`
	TimeZone           string `yaml:"time_zone"` // zone for date filters (default: UTC)
}

// Timeout returns the index request timeout.
func (s SearchConfig) Timeout() time.Duration { return time.Duration(s.TimeoutSec) * time.Second }

// Location resolves TimeZone. Validate rejects unknown zones.
func (s SearchConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CatalogConfig holds the PostgreSQL catalog connection settings.
type CatalogConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
}

// FeaturesConfig toggles optional capabilities. Unset features are enabled.
type FeaturesConfig struct {
	Circulation *bool `yaml:"circulation"`
	Subject     *bool `yaml:"subject"`
	Bookmark    *bool `yaml:"bookmark"`
}

// CirculationEnabled reports whether the reservable facet is offered.
func (f FeaturesConfig) CirculationEnabled() bool { return enabled(f.Circulation) }

// SubjectEnabled reports whether the subject facet and filter are offered.
func (f FeaturesConfig) SubjectEnabled() bool { return enabled(f.Subject) }

// BookmarkEnabled reports whether the tag cloud is offered.
func (f FeaturesConfig) BookmarkEnabled() bool { return enabled(f.Bookmark) }

func enabled(b *bool) bool { return b == nil || *b }

// OAIConfig describes the OAI-PMH repository.
type OAIConfig struct {
	RepositoryName   string `yaml:"repository_name"`
	BaseURL          string `yaml:"base_url"`
	AdminEmail       string `yaml:"admin_email"`
	IdentifierPrefix string `yaml:"identifier_prefix"`
	PageSize         int    `yaml:"page_size"`
}

// SRUConfig describes the SRU database.
type SRUConfig struct {
	Title          string `yaml:"title"`
	MaximumRecords int    `yaml:"maximum_records"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references first.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "libcat_session"
	}
	if c.Session.TTLSec <= 0 {
		c.Session.TTLSec = 86400
	}
	if c.Session.KeyPrefix == "" {
		c.Session.KeyPrefix = domain.KeyPrefix + "session:"
	}
	if c.Search.Backend == "" {
		c.Search.Backend = BackendBleve
	}
	if c.Search.Index == "" {
		c.Search.Index = "manifestations"
	}
	if c.Search.MaxNumberOfResults == 0 {
		c.Search.MaxNumberOfResults = 500
	}
	if c.Search.PerPage == 0 {
		c.Search.PerPage = 10
	}
	if c.Search.CSVPerPage == 0 {
		c.Search.CSVPerPage = 65534
	}
	if c.Search.TimeoutSec <= 0 {
		c.Search.TimeoutSec = 10
	}
	if c.Search.TimeZone == "" {
		c.Search.TimeZone = "UTC"
	}
	if c.OAI.RepositoryName == "" {
		c.OAI.RepositoryName = version.Name
	}
	if c.OAI.IdentifierPrefix == "" {
		c.OAI.IdentifierPrefix = "oai:libcat:"
	}
	if c.OAI.PageSize <= 0 {
		c.OAI.PageSize = 200
	}
	if c.SRU.Title == "" {
		c.SRU.Title = c.OAI.RepositoryName
	}
	if c.SRU.MaximumRecords <= 0 {
		c.SRU.MaximumRecords = 200
	}
	if c.Auth.LoginURL == "" {
		c.Auth.LoginURL = "/users/sign_in"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Database.Driver {
	case "redis", "valkey":
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"valkey\", got %q", c.Database.Driver)
	}
	switch c.Search.Backend {
	case BackendBleve, BackendRediSearch:
	case BackendSolr, BackendMeilisearch:
		if c.Search.URL == "" {
			return fmt.Errorf("search.url is required for the %s backend", c.Search.Backend)
		}
	default:
		return fmt.Errorf("search.backend must be one of solr, bleve, redisearch, meilisearch; got %q", c.Search.Backend)
	}
	if c.Search.MaxNumberOfResults < 0 || c.Search.PerPage < 0 || c.Search.CSVPerPage < 0 {
		return fmt.Errorf("search result window sizes must be positive")
	}
	if _, err := time.LoadLocation(c.Search.TimeZone); err != nil {
		return fmt.Errorf("search.time_zone: %w", err)
	}
	for i, k := range c.Auth.APIKeys {
		if k.Key == "" {
			return fmt.Errorf("auth.api_keys[%d].key is required", i)
		}
		if _, err := domain.ParseRole(k.Role); err != nil {
			return fmt.Errorf("auth.api_keys[%d]: %w", i, err)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
