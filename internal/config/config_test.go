package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Server.ConnectionLimit)
	assert.Equal(t, "de", cfg.Server.AcceptLanguage)
	assert.Equal(t, 1000, cfg.Chunky.ChunkSize)
	assert.Equal(t, 1, cfg.Chunky.ParallelChunks)
	assert.Equal(t, 100, cfg.Chunky.ConcurrencyBudget)
	assert.Equal(t, []string{"Address", "CollectionActivity", "Ownership", "Registrar"}, cfg.Chunky.ExcludeModules)
	require.Len(t, cfg.Chunky.FieldSelections, 1)
	assert.Equal(t, "Address", cfg.Chunky.FieldSelections[0].Module)
	assert.Equal(t, ".", cfg.Output.Dir)
	assert.Equal(t, 6*time.Hour, cfg.Redis.LockTTL)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: https://museumplus.example.org/MpWeb-mpTest
  user: monk
  password: secret
  timeout: 90s
chunky:
  chunk_size: 500
  parallel_chunks: 4
  exclude_modules: [Address, Registrar]
  field_selections:
    - module: Person
      fields: [__id, PerNennformTxt]
output:
  dir: /srv/chunks
redis:
  addr: localhost:6379
  db: 2
logging:
  level: debug
  pretty: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://museumplus.example.org/MpWeb-mpTest", cfg.Server.BaseURL)
	assert.Equal(t, "monk", cfg.Server.User)
	assert.Equal(t, 90*time.Second, cfg.Server.Timeout)
	assert.Equal(t, 500, cfg.Chunky.ChunkSize)
	assert.Equal(t, 4, cfg.Chunky.ParallelChunks)
	assert.Equal(t, []string{"Address", "Registrar"}, cfg.Chunky.ExcludeModules)
	require.Len(t, cfg.Chunky.FieldSelections, 1)
	assert.Equal(t, FieldSelection{Module: "Person", Fields: []string{"__id", "PerNennformTxt"}}, cfg.Chunky.FieldSelections[0])
	assert.Equal(t, "/srv/chunks", cfg.Output.Dir)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.True(t, cfg.Logging.Pretty)

	// Values the file does not mention keep their defaults.
	assert.Equal(t, 100, cfg.Chunky.ConcurrencyBudget)
	assert.Equal(t, 24*time.Hour, cfg.Redis.DefinitionTTL)

	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("MPAPI_SERVER_BASE_URL", "https://env.example.org")
	t.Setenv("MPAPI_SERVER_USER", "envuser")
	t.Setenv("MPAPI_CHUNKY_CHUNK_SIZE", "250")
	t.Setenv("MPAPI_REDIS_LOCK_TTL", "30m")

	path := writeConfig(t, `
server:
  base_url: https://file.example.org
  user: fileuser
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.org", cfg.Server.BaseURL)
	assert.Equal(t, "envuser", cfg.Server.User)
	assert.Equal(t, 250, cfg.Chunky.ChunkSize)
	assert.Equal(t, 30*time.Minute, cfg.Redis.LockTTL)
}

func TestLoad_SubstitutesVariables(t *testing.T) {
	t.Setenv("RIA_PASSWORD", "s3cret")
	path := writeConfig(t, `
server:
  base_url: https://museumplus.example.org
  user: monk
  password: ${RIA_PASSWORD}
output:
  dir: $MPAPI_TEST_UNSET_DIR
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Server.Password)
	assert.Equal(t, "$MPAPI_TEST_UNSET_DIR", cfg.Output.Dir)
}

func TestExpandEnvVar(t *testing.T) {
	t.Setenv("MPAPI_TEST_HOST", "db.local")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${MPAPI_TEST_HOST}:6379", "db.local:6379"},
		{"$MPAPI_TEST_HOST", "db.local"},
		{"${MPAPI_TEST_MISSING}", "${MPAPI_TEST_MISSING}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandEnvVar(tt.in), tt.in)
	}
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Server.BaseURL = "https://museumplus.example.org/MpWeb-mpTest"
	cfg.Server.User = "monk"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		fields []string
	}{
		{name: "valid", modify: func(*Config) {}},
		{
			name:   "missing server",
			modify: func(c *Config) { c.Server.BaseURL = ""; c.Server.User = "" },
			fields: []string{"server.base_url", "server.user"},
		},
		{
			name:   "relative url",
			modify: func(c *Config) { c.Server.BaseURL = "museumplus/MpWeb" },
			fields: []string{"server.base_url"},
		},
		{
			name: "non-positive run parameters",
			modify: func(c *Config) {
				c.Chunky.ChunkSize = 0
				c.Chunky.ParallelChunks = -1
				c.Chunky.ConcurrencyBudget = 0
			},
			fields: []string{"chunky.chunk_size", "chunky.parallel_chunks", "chunky.concurrency_budget"},
		},
		{
			name:   "empty field selection",
			modify: func(c *Config) { c.Chunky.FieldSelections = []FieldSelection{{Module: "Person"}} },
			fields: []string{"chunky.field_selections[0].fields"},
		},
		{
			name: "redis ttl",
			modify: func(c *Config) {
				c.Redis.Addr = "localhost:6379"
				c.Redis.LockTTL = 0
			},
			fields: []string{"redis.lock_ttl"},
		},
		{
			name:   "redis ttl ignored when disabled",
			modify: func(c *Config) { c.Redis.LockTTL = 0 },
		},
		{
			name:   "log level",
			modify: func(c *Config) { c.Logging.Level = "verbose" },
			fields: []string{"logging.level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs), "error = %v", err)
			var got []string
			for _, v := range verrs {
				got = append(got, v.Field)
			}
			assert.Equal(t, tt.fields, got)
			assert.True(t, strings.HasPrefix(err.Error(), "validation failed:\n  - "))
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyOverrides(Overrides{})
	assert.Equal(t, validConfig(), cfg)

	cfg.ApplyOverrides(Overrides{
		ChunkSize:      10,
		ParallelChunks: 3,
		ExcludeModules: []string{},
		OutputDir:      "/tmp/out",
		LogLevel:       "debug",
	})
	assert.Equal(t, 10, cfg.Chunky.ChunkSize)
	assert.Equal(t, 3, cfg.Chunky.ParallelChunks)
	assert.Equal(t, 100, cfg.Chunky.ConcurrencyBudget)
	assert.Empty(t, cfg.Chunky.ExcludeModules)
	assert.Equal(t, "/tmp/out", cfg.Output.Dir)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestConversions(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Timeout = time.Minute
	cfg.Redis.DefinitionTTL = time.Hour

	sc := cfg.SessionConfig()
	assert.Equal(t, cfg.Server.BaseURL, sc.BaseURL)
	assert.Equal(t, 100, sc.ConnectionLimit)
	assert.Equal(t, time.Minute, sc.Timeout)

	cc := cfg.ChunkyConfig()
	require.NoError(t, cc.Validate())
	assert.Equal(t, 1000, cc.ChunkSize)
	assert.Contains(t, cc.FieldSelections, "Address")

	clc := cfg.ClientConfig()
	assert.Equal(t, time.Hour, clc.DefinitionTTL)
	assert.Equal(t, cfg.Server.BaseURL, clc.Instance)
	assert.Equal(t, "de", clc.Language)
}
