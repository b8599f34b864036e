package libcat

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Index backends.
const (
	backendBleve       = "bleve"
	backendSolr        = "solr"
	backendMeilisearch = "meilisearch"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	backend   string
	path      string
	url       string
	apiKey    string
	indexName string
	timeout   time.Duration

	catalog     Catalog
	catalogDSN  string
	maxConns    int
	circulation bool

	maxResults       int
	perPage          int
	harvestPageSize  int
	identifierPrefix string
	location         *time.Location

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithBleve uses an embedded bleve index stored at path. An empty path keeps the index in memory.
func WithBleve(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.backend = backendBleve
		c.path = path
	})
}

// WithSolr queries an existing Solr core at baseURL, e.g. "http://localhost:8983/solr/libcat".
// The Solr backend is read-only: Index returns ErrNotImplemented.
func WithSolr(baseURL string) Option {
	return optionFunc(func(c *clientConfig) {
		c.backend = backendSolr
		c.url = baseURL
	})
}

// WithMeilisearch uses a Meilisearch server.
func WithMeilisearch(host, apiKey string) Option {
	return optionFunc(func(c *clientConfig) {
		c.backend = backendMeilisearch
		c.url = host
		c.apiKey = apiKey
	})
}

// WithIndexName sets the index (or Meilisearch uid) name. Default: "manifestations".
func WithIndexName(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.indexName = name
	})
}

// WithTimeout bounds each request to a remote index. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeout = d
	})
}

// WithCatalog sets the reader that loads records by id.
func WithCatalog(cat Catalog) Option {
	return optionFunc(func(c *clientConfig) {
		c.catalog = cat
	})
}

// WithPostgres reads records from a PostgreSQL catalog. Ignored when WithCatalog is set.
func WithPostgres(dsn string, maxConns int) Option {
	return optionFunc(func(c *clientConfig) {
		c.catalogDSN = dsn
		c.maxConns = maxConns
	})
}

// WithCirculation enables the reservable facet and filter.
func WithCirculation() Option {
	return optionFunc(func(c *clientConfig) {
		c.circulation = true
	})
}

// WithResultWindow sets the result cap and the page size of listings.
// Defaults: 500 and 10.
func WithResultWindow(maxResults, perPage int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxResults = maxResults
		c.perPage = perPage
	})
}

// WithHarvest sets the OAI identifier prefix and the number of records per harvest page.
// Defaults: "oai:libcat:" and 200.
func WithHarvest(identifierPrefix string, pageSize int) Option {
	return optionFunc(func(c *clientConfig) {
		c.identifierPrefix = identifierPrefix
		c.harvestPageSize = pageSize
	})
}

// WithTimeZone sets the zone date filters are interpreted in. Default: UTC.
func WithTimeZone(loc *time.Location) Option {
	return optionFunc(func(c *clientConfig) {
		c.location = loc
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
