package stepauth

import (
	"errors"

	"github.com/nvidela/stepauth/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a [Core]. Configure it fluently, then call Build
// exactly once.
type Builder struct {
	config Config
	redis  *redis.Client

	authenticator Authenticator
	auditSink     AuditSink

	built bool
}

// New creates a builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing session and challenge
// persistence.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithAuthenticator sets the remote side of every flow.
func (b *Builder) WithAuthenticator(a Authenticator) *Builder {
	b.authenticator = a
	return b
}

// WithAuditSink sets the sink receiving audit events. Audit must also
// be enabled in the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the core. A builder can
// build only once.
func (b *Builder) Build() (*Core, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.authenticator == nil {
		return nil, errors.New("authenticator required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	core := &Core{
		config:        cfg,
		authenticator: b.authenticator,
		sessions:      session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.TTL),
		challenges:    newLoginChallengeStore(b.redis, cfg.Challenge.RedisPrefix),
		audit:         newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:       NewMetrics(cfg.Metrics),
	}

	b.built = true

	return core, nil
}
