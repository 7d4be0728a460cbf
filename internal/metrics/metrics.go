package metrics

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Enabled   bool     `yaml:"enabled"`
	AgentAddr string   `yaml:"agent_addr"`
	Namespace string   `yaml:"namespace"`
	Tags      []string `yaml:"tags"`
}

// client is nil until Init succeeds; every emitter is a no-op before that.
var client statsd.ClientInterface

var warnOnError bool

func Init(cfg Config) {
	if !cfg.Enabled {
		log.Info().Msg("Datadog metrics disabled")
		return
	}

	c, err := statsd.New(cfg.AgentAddr,
		statsd.WithNamespace(cfg.Namespace),
		statsd.WithTags(cfg.Tags),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}
	client = c
	warnOnError = true

	log.Info().
		Str("addr", cfg.AgentAddr).
		Str("namespace", cfg.Namespace).
		Strs("tags", cfg.Tags).
		Msg("Datadog metrics initialized")
}

// SetClient replaces the client, typically with a test double. Passing nil
// disables emission.
func SetClient(c statsd.ClientInterface) {
	client = c
}

func Gauge(name string, value float64, tags ...string) {
	if client == nil {
		return
	}
	if err := client.Gauge(name, value, tags, 1); err != nil && warnOnError {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

func Incr(name string, tags ...string) {
	if client == nil {
		return
	}
	if err := client.Incr(name, tags, 1); err != nil && warnOnError {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
	}
}

// Close flushes buffered metrics.
func Close() {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close DogStatsD client")
	}
	client = nil
}
