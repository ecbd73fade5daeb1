package authcore

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mkarpis/authcore/internal/audit"
	"github.com/mkarpis/authcore/internal/challenge"
	"github.com/mkarpis/authcore/internal/metrics"
	"github.com/mkarpis/authcore/internal/rate"
	"github.com/mkarpis/authcore/jwt"
	"github.com/mkarpis/authcore/keys"
	"github.com/mkarpis/authcore/password"
	"github.com/mkarpis/authcore/session"
	"github.com/mkarpis/authcore/store"
	"github.com/mkarpis/authcore/totp"
)

// Builder assembles an Engine. Configure it during initialization and
// call Build once.
type Builder struct {
	config Config

	redis    redis.UniversalClient
	accounts store.AccountStore
	tokens   store.RefreshTokenStore

	auditSink  AuditSink
	log        *zap.Logger
	registerer prometheus.Registerer

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the configuration. Unset fields keep their
// defaults.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg.merged()
	return b
}

// WithRedis supplies the Redis client backing sessions, challenges,
// and the rate gate.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore supplies the durable account backend.
func (b *Builder) WithAccountStore(s store.AccountStore) *Builder {
	b.accounts = s
	return b
}

// WithRefreshTokenStore supplies the durable refresh-token backend.
func (b *Builder) WithRefreshTokenStore(s store.RefreshTokenStore) *Builder {
	b.tokens = s
	return b
}

// WithAuditSink routes audit events to the given sink. Without one,
// events are dropped.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Without one the engine is
// silent.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// WithRegisterer registers the engine's prometheus instruments on the
// given registry.
func (b *Builder) WithRegisterer(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// Build validates the configuration and wires the Engine. A Builder
// builds at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, fmt.Errorf("%w: builder already used", ErrBuilderIncomplete)
	}
	if b.redis == nil {
		return nil, fmt.Errorf("%w: redis client", ErrBuilderIncomplete)
	}
	if b.accounts == nil {
		return nil, fmt.Errorf("%w: account store", ErrBuilderIncomplete)
	}
	if b.tokens == nil {
		return nil, fmt.Errorf("%w: refresh token store", ErrBuilderIncomplete)
	}
	cfg := b.config.merged()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}

	keyManager, err := keys.NewManager(keys.Config{
		PrivateKeyPEM: cfg.PrivateKeyPEM,
		PublicKeyPEM:  cfg.PublicKeyPEM,
	}, log)
	if err != nil {
		return nil, err
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		Issuer:    cfg.Issuer,
		AccessTTL: cfg.AccessTTL,
		Leeway:    cfg.Leeway,
		Private:   keyManager.Private(),
		Public:    keyManager.Public(),
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(cfg.Argon2)
	if err != nil {
		return nil, err
	}

	dispatcher := audit.NewDispatcher(b.auditSink, cfg.AuditBufferSize)

	e := &Engine{
		cfg:        cfg,
		log:        log,
		accounts:   b.accounts,
		tokens:     b.tokens,
		sessions:   session.NewStore(b.redis, cfg.SessionTTL),
		challenges: challenge.NewStore(b.redis, cfg.ChallengeTTL),
		gate:       rate.NewGate(b.redis, cfg.RateLimits, log),
		hasher:     hasher,
		keyManager: keyManager,
		jwt:        jwtManager,
		totp:       totp.NewGenerator(cfg.Issuer),
		audit:      dispatcher,
		metrics:    metrics.New(b.registerer),
	}

	b.built = true
	return e, nil
}
