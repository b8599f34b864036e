package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"addrs", func(c *Config) { c.Database.Addrs = nil }, "database.addrs"},
		{"driver", func(c *Config) { c.Database.Driver = "memcached" }, "database.driver"},
		{"backend", func(c *Config) { c.Search.Backend = "elastic" }, "search.backend"},
		{"solr url", func(c *Config) { c.Search.Backend = BackendSolr }, "search.url"},
		{"meilisearch url", func(c *Config) { c.Search.Backend = BackendMeilisearch }, "search.url"},
		{"negative cap", func(c *Config) { c.Search.MaxNumberOfResults = -1 }, "window"},
		{"time zone", func(c *Config) { c.Search.TimeZone = "Mars/Olympus" }, "search.time_zone"},
		{"api key role", func(c *Config) {
			c.Auth.APIKeys = []APIKey{{Key: "k", Login: "bot", Role: "Overlord"}}
		}, "auth.api_keys[0]"},
		{"api key blank", func(c *Config) { c.Auth.APIKeys = []APIKey{{Role: "Guest"}} }, "auth.api_keys[0].key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 || cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("http timeouts = %+v", cfg.HTTP)
	}
	if cfg.Database.Driver != "redis" || cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Session.CookieName != "libcat_session" || cfg.Session.TTL() != 24*time.Hour {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Session.KeyPrefix != "libcat:session:" {
		t.Errorf("KeyPrefix = %q", cfg.Session.KeyPrefix)
	}
	s := cfg.Search
	if s.Backend != BackendBleve || s.Index != "manifestations" {
		t.Errorf("search backend = %q index = %q", s.Backend, s.Index)
	}
	if s.MaxNumberOfResults != 500 || s.PerPage != 10 || s.CSVPerPage != 65534 {
		t.Errorf("search window = %d/%d/%d", s.MaxNumberOfResults, s.PerPage, s.CSVPerPage)
	}
	if s.Timeout() != 10*time.Second || s.Location() != time.UTC {
		t.Errorf("timeout = %v, location = %v", s.Timeout(), s.Location())
	}
	if cfg.OAI.PageSize != 200 || cfg.OAI.IdentifierPrefix != "oai:libcat:" {
		t.Errorf("oai = %+v", cfg.OAI)
	}
	if cfg.SRU.MaximumRecords != 200 || cfg.SRU.Title != "libcat" {
		t.Errorf("sru = %+v", cfg.SRU)
	}
	if cfg.Auth.LoginURL != "/users/sign_in" {
		t.Errorf("LoginURL = %q", cfg.Auth.LoginURL)
	}
	if !cfg.Features.CirculationEnabled() || !cfg.Features.SubjectEnabled() || !cfg.Features.BookmarkEnabled() {
		t.Error("features should default to enabled")
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:    HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Session: SessionConfig{CookieName: "sid", TTLSec: 60, KeyPrefix: "custom:"},
		Search:  SearchConfig{Backend: BackendSolr, PerPage: 25, TimeZone: "Asia/Tokyo"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 || cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("http = %+v", cfg.HTTP)
	}
	if cfg.Session.CookieName != "sid" || cfg.Session.KeyPrefix != "custom:" || cfg.Session.TTLSec != 60 {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Search.Backend != BackendSolr || cfg.Search.PerPage != 25 || cfg.Search.TimeZone != "Asia/Tokyo" {
		t.Errorf("search = %+v", cfg.Search)
	}
}

func TestParse(t *testing.T) {
	t.Setenv("LIBCAT_TEST_SOLR", "http://solr:8983/solr/libcat")
	data := []byte(`
http:
  port: 8080
database:
  addrs: ["${LIBCAT_TEST_VALKEY:-localhost:6379}"]
search:
  backend: solr
  url: ${LIBCAT_TEST_SOLR}
features:
  bookmark: false
auth:
  api_keys:
    - key: secret
      login: harvester
      role: librarian
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Database.Addrs[0] != "localhost:6379" {
		t.Errorf("addrs = %v", cfg.Database.Addrs)
	}
	if cfg.Search.URL != "http://solr:8983/solr/libcat" {
		t.Errorf("url = %q", cfg.Search.URL)
	}
	if cfg.Features.BookmarkEnabled() || !cfg.Features.SubjectEnabled() {
		t.Errorf("features = %+v", cfg.Features)
	}
	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0].Login != "harvester" {
		t.Errorf("api keys = %+v", cfg.Auth.APIKeys)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Error("expected YAML error")
	}
	if _, err := Parse([]byte("http:\n  port: 8080\n")); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoad_FromProjectRoot(t *testing.T) {
	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 8080 || cfg.Search.Backend != BackendBleve {
		t.Errorf("cfg = %+v", cfg)
	}
}
