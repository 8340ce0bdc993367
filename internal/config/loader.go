package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables, e.g. MPAPI_SERVER_PASSWORD.
const EnvPrefix = "MPAPI"

// envKeys are the settings that can be set from the environment.
var envKeys = []string{
	"server.base_url",
	"server.user",
	"server.password",
	"server.connection_limit",
	"server.timeout",
	"server.accept_language",
	"chunky.chunk_size",
	"chunky.exclude_modules",
	"chunky.parallel_chunks",
	"chunky.concurrency_budget",
	"output.dir",
	"redis.addr",
	"redis.password",
	"redis.db",
	"redis.lock_ttl",
	"redis.definition_ttl",
	"logging.level",
	"logging.pretty",
	"metrics.addr",
}

// Load reads configuration from configPath, then applies environment
// variables. An empty configPath uses defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper creates a Config from an existing Viper instance.
// Environment variables with EnvPrefix are bound on v.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	substituteEnvVars(cfg)
	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substituteEnvVars expands ${VAR} references in connection settings so
// credentials can stay out of the file.
func substituteEnvVars(cfg *Config) {
	cfg.Server.BaseURL = expandEnvVar(cfg.Server.BaseURL)
	cfg.Server.User = expandEnvVar(cfg.Server.User)
	cfg.Server.Password = expandEnvVar(cfg.Server.Password)
	cfg.Redis.Addr = expandEnvVar(cfg.Redis.Addr)
	cfg.Redis.Password = expandEnvVar(cfg.Redis.Password)
	cfg.Output.Dir = expandEnvVar(cfg.Output.Dir)
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
// Unknown variables are left as they are.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// Overrides are values from the job file or the command line. Zero values
// leave the configuration unchanged.
type Overrides struct {
	ChunkSize         int
	ParallelChunks    int
	ConcurrencyBudget int
	ExcludeModules    []string
	OutputDir         string
	LogLevel          string
	Pretty            bool
}

// ApplyOverrides applies o on top of the loaded configuration.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.ChunkSize > 0 {
		c.Chunky.ChunkSize = o.ChunkSize
	}
	if o.ParallelChunks > 0 {
		c.Chunky.ParallelChunks = o.ParallelChunks
	}
	if o.ConcurrencyBudget > 0 {
		c.Chunky.ConcurrencyBudget = o.ConcurrencyBudget
	}
	if o.ExcludeModules != nil {
		c.Chunky.ExcludeModules = o.ExcludeModules
	}
	if o.OutputDir != "" {
		c.Output.Dir = o.OutputDir
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.Pretty {
		c.Logging.Pretty = true
	}
}
