package kbase

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

// Storage drivers.
const (
	driverMemory   = "memory"
	driverRedis    = "redis"
	driverPostgres = "postgres"
)

type clientConfig struct {
	driver    string
	addrs     []string
	password  string
	dsn       string
	keyPrefix string

	embedder            Embedder
	documentInstruction string
	queryInstruction    string

	disabledFormats []string
	reembedWorkers  int

	qdrantAddr       string
	qdrantCollection string
	qdrantDims       int
	qdrantPlaintext  bool

	natsURL    string
	natsPrefix string

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithMemory keeps documents in process memory. Useful for tests and demos.
func WithMemory() Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverMemory
	})
}

// WithRedis stores documents in a Redis or Valkey instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverRedis
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithPostgres stores documents in PostgreSQL. The schema is created on connect.
func WithPostgres(dsn string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverPostgres
		c.dsn = dsn
	})
}

// WithKeyPrefix namespaces Redis keys. Default: "kbase:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithEmbedder sets the text embedding provider.
// Without one, documents are stored unembedded and searches fail.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithInstructions sets the task prefixes for asymmetric embedding models.
func WithInstructions(document, query string) Option {
	return optionFunc(func(c *clientConfig) {
		c.documentInstruction = document
		c.queryInstruction = query
	})
}

// WithDisabledFormats turns off file formats by name (pdf, docx, xlsx, xls, csv).
func WithDisabledFormats(formats ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.disabledFormats = formats
	})
}

// WithReembedWorkers bounds concurrent provider calls during Reembed.
func WithReembedWorkers(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.reembedWorkers = n
	})
}

// WithQdrant narrows searches to candidates from a Qdrant collection.
// Embedded documents are mirrored into it; the collection is created with
// dims-sized cosine vectors when missing.
func WithQdrant(addr, collection string, dims int, plaintext bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.qdrantAddr = addr
		c.qdrantCollection = collection
		c.qdrantDims = dims
		c.qdrantPlaintext = plaintext
	})
}

// WithNATS publishes document lifecycle events on subjects under prefix.
func WithNATS(url, prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.natsURL = url
		c.natsPrefix = prefix
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
