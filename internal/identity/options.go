package identity

import (
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/docstore/internal/cache"
	"github.com/dropDatabas3/docstore/internal/observability/logger"
	"github.com/dropDatabas3/docstore/internal/security/password"
	"github.com/dropDatabas3/docstore/internal/store/mongo"
)

// DefaultRoleCacheTTL es el TTL de las entradas del cache de roles.
const DefaultRoleCacheTTL = 5 * time.Minute

type options struct {
	log      *zap.Logger
	cache    cache.Client
	cacheTTL time.Duration
	repo     []mongo.Option
	hash     password.Params
	policy   password.Policy
}

// Option configura un store de identidad.
type Option func(*options)

// WithLogger reemplaza el logger (default: logger.Named("identity")).
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRoleCache activa el read-through cache de FindByName en RoleStore.
// ttl <= 0 usa DefaultRoleCacheTTL. UserStore lo ignora.
func WithRoleCache(c cache.Client, ttl time.Duration) Option {
	return func(o *options) {
		o.cache = c
		o.cacheTTL = ttl
	}
}

// WithPasswordHashing fija los parámetros argon2id y la política de SetPassword.
func WithPasswordHashing(p password.Params, policy password.Policy) Option {
	return func(o *options) {
		o.hash = p
		o.policy = policy
	}
}

// WithRepositoryOptions pasa opciones al repositorio subyacente (reloj, logger).
func WithRepositoryOptions(opts ...mongo.Option) Option {
	return func(o *options) { o.repo = append(o.repo, opts...) }
}

func buildOptions(opts []Option) options {
	o := options{hash: password.Default, policy: password.DefaultPolicy}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = logger.Named("identity")
	}
	if o.cacheTTL <= 0 {
		o.cacheTTL = DefaultRoleCacheTTL
	}
	return o
}
