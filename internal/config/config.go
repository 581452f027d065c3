package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod | test
		Env     string `yaml:"app_env"`
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Storage struct {
		// mongo | memory
		Driver string `yaml:"driver"`
		Mongo  struct {
			URI            string `yaml:"uri"`
			Database       string `yaml:"database"`
			AppName        string `yaml:"app_name"`
			ConnectTimeout string `yaml:"connect_timeout"`
			MaxPoolSize    uint64 `yaml:"max_pool_size"`
			// tipo de entidad -> nombre de colección (user: User, role: Role)
			Collections map[string]string `yaml:"collections"`
		} `yaml:"mongo"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis | none
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		RoleTTL string `yaml:"role_ttl"`
	} `yaml:"cache"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	JWT struct {
		Issuer   string `yaml:"issuer"`
		Audience string `yaml:"audience"`
		Key      string `yaml:"key"`
		Lifetime string `yaml:"lifetime"`
	} `yaml:"jwt"`

	Security struct {
		PasswordPolicy struct {
			MinLength     int  `yaml:"min_length"`
			RequireUpper  bool `yaml:"require_upper"`
			RequireLower  bool `yaml:"require_lower"`
			RequireDigit  bool `yaml:"require_digit"`
			RequireSymbol bool `yaml:"require_symbol"`
		} `yaml:"password_policy"`
	} `yaml:"security"`
}

// Load lee el YAML en path, aplica overrides de entorno y defaults, y valida.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c.finish()
}

// FromEnv arma la configuración solo desde variables de entorno (sin YAML).
func FromEnv() (*Config, error) {
	var c Config
	return c.finish()
}

func (c *Config) finish() (*Config, error) {
	c.applyEnvOverrides()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "docstore"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "mongo"
	}
	if c.Storage.Mongo.URI == "" {
		c.Storage.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Storage.Mongo.Database == "" {
		c.Storage.Mongo.Database = "docstore"
	}
	if c.Storage.Mongo.AppName == "" {
		c.Storage.Mongo.AppName = c.App.Name
	}
	if c.Storage.Mongo.ConnectTimeout == "" {
		c.Storage.Mongo.ConnectTimeout = "10s"
	}
	if c.Storage.Mongo.Collections == nil {
		c.Storage.Mongo.Collections = map[string]string{}
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.RoleTTL == "" {
		c.Cache.RoleTTL = "5m"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.JWT.Lifetime == "" {
		c.JWT.Lifetime = "60m"
	}
	if c.Security.PasswordPolicy.MinLength == 0 {
		c.Security.PasswordPolicy.MinLength = 8
	}
}

// Validate verifica drivers y strings de duración.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "mongo", "memory":
	default:
		errs = append(errs, fmt.Errorf("config: storage.driver %q not supported (mongo|memory)", c.Storage.Driver))
	}
	switch c.Cache.Kind {
	case "memory", "redis", "none":
	default:
		errs = append(errs, fmt.Errorf("config: cache.kind %q not supported (memory|redis|none)", c.Cache.Kind))
	}
	for name, v := range map[string]string{
		"storage.mongo.connect_timeout": c.Storage.Mongo.ConnectTimeout,
		"cache.role_ttl":                c.Cache.RoleTTL,
		"jwt.lifetime":                  c.JWT.Lifetime,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ConnectTimeout retorna storage.mongo.connect_timeout ya parseado.
func (c *Config) ConnectTimeout() time.Duration { return mustDur(c.Storage.Mongo.ConnectTimeout) }

// RoleCacheTTL retorna cache.role_ttl ya parseado.
func (c *Config) RoleCacheTTL() time.Duration { return mustDur(c.Cache.RoleTTL) }

// JWTLifetime retorna jwt.lifetime ya parseado.
func (c *Config) JWTLifetime() time.Duration { return mustDur(c.JWT.Lifetime) }

// mustDur asume un valor ya validado por Validate.
func mustDur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("APP_VERSION"); ok {
		c.App.Version = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("MONGO_URI"); ok {
		c.Storage.Mongo.URI = v
	}
	if v, ok := getEnvStr("MONGO_DATABASE"); ok {
		c.Storage.Mongo.Database = v
	}
	if v, ok := getEnvStr("MONGO_APP_NAME"); ok {
		c.Storage.Mongo.AppName = v
	}
	if v, ok := getEnvStr("MONGO_CONNECT_TIMEOUT"); ok {
		c.Storage.Mongo.ConnectTimeout = v
	}
	if v, ok := getEnvInt("MONGO_MAX_POOL_SIZE"); ok && v >= 0 {
		c.Storage.Mongo.MaxPoolSize = uint64(v)
	}
	// MONGO_COLLECTIONS="user=Users,role=Roles" se fusiona sobre el YAML
	if m, ok := getEnvKVList("MONGO_COLLECTIONS", ","); ok {
		if c.Storage.Mongo.Collections == nil {
			c.Storage.Mongo.Collections = map[string]string{}
		}
		for k, v := range m {
			c.Storage.Mongo.Collections[k] = v
		}
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvStr("ROLE_CACHE_TTL"); ok {
		c.Cache.RoleTTL = v
	}

	// LOG
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}

	// JWT
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_AUDIENCE"); ok {
		c.JWT.Audience = v
	}
	if v, ok := getEnvStr("JWT_KEY"); ok {
		c.JWT.Key = v
	}
	if v, ok := getEnvStr("JWT_LIFETIME"); ok {
		c.JWT.Lifetime = v
	}

	// SECURITY
	if v, ok := getEnvInt("PASSWORD_MIN_LENGTH"); ok {
		c.Security.PasswordPolicy.MinLength = v
	}
	if v, ok := getEnvBool("PASSWORD_REQUIRE_UPPER"); ok {
		c.Security.PasswordPolicy.RequireUpper = v
	}
	if v, ok := getEnvBool("PASSWORD_REQUIRE_DIGIT"); ok {
		c.Security.PasswordPolicy.RequireDigit = v
	}
	if v, ok := getEnvBool("PASSWORD_REQUIRE_SYMBOL"); ok {
		c.Security.PasswordPolicy.RequireSymbol = v
	}
}

// parse env of form "k1=v1<sep>k2=v2" into map
func parseKVList(s, sep string) map[string]string {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]string{}
	}
	items := strings.Split(s, sep)
	out := make(map[string]string, len(items))
	for _, it := range items {
		k, v, ok := strings.Cut(strings.TrimSpace(it), "=")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func getEnvKVList(key, sep string) (map[string]string, bool) {
	if s, ok := getEnvStr(key); ok {
		return parseKVList(s, sep), true
	}
	return nil, false
}
