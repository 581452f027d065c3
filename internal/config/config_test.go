package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_DefaultsAndYAML(t *testing.T) {
	p := writeYAML(t, `
storage:
  mongo:
    database: identity
    collections:
      user: Users
cache:
  role_ttl: 30s
`)
	c, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "dev", c.App.Env)
	assert.Equal(t, "mongo", c.Storage.Driver)
	assert.Equal(t, "identity", c.Storage.Mongo.Database)
	assert.Equal(t, "Users", c.Storage.Mongo.Collections["user"])
	assert.Equal(t, "memory", c.Cache.Kind)
	assert.Equal(t, 30*time.Second, c.RoleCacheTTL())
	assert.Equal(t, 10*time.Second, c.ConnectTimeout())
	assert.Equal(t, time.Hour, c.JWTLifetime())
	assert.Equal(t, 8, c.Security.PasswordPolicy.MinLength)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("MONGO_COLLECTIONS", "role=Roles, user = People ,bad")
	t.Setenv("CACHE_KIND", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("JWT_KEY", "k")
	t.Setenv("PASSWORD_REQUIRE_UPPER", "true")

	p := writeYAML(t, `
storage:
  driver: mongo
  mongo:
    collections:
      user: Users
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, map[string]string{"user": "People", "role": "Roles"}, c.Storage.Mongo.Collections)
	assert.Equal(t, "redis", c.Cache.Kind)
	assert.Equal(t, 3, c.Cache.Redis.DB)
	assert.Equal(t, "k", c.JWT.Key)
	assert.True(t, c.Security.PasswordPolicy.RequireUpper)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://db:27017")
	t.Setenv("LOG_LEVEL", "DEBUG")
	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "mongodb://db:27017", c.Storage.Mongo.URI)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestValidate(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("ROLE_CACHE_TTL", "soon")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.driver")
	assert.Contains(t, err.Error(), "cache.role_ttl")
}

func TestParseKVList(t *testing.T) {
	assert.Empty(t, parseKVList("  ", ","))
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, parseKVList("a=1;b=2;c=", ";"))
}
