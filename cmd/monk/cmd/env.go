package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mpapi-go/mpapi/internal/config"
	"github.com/mpapi-go/mpapi/pkg/budget"
	"github.com/mpapi-go/mpapi/pkg/cache"
	"github.com/mpapi-go/mpapi/pkg/client"
	"github.com/mpapi-go/mpapi/pkg/session"
)

// environment is everything a command needs to talk to MuseumPlus.
type environment struct {
	session *session.Session
	client  *client.Client
	redis   *redis.Client // nil without redis.addr
}

// openEnvironment opens the session and, when configured, connects to
// redis for the definition cache and the job lock.
func openEnvironment(ctx context.Context, cfg *config.Config) (*environment, error) {
	sess, err := session.Open(cfg.SessionConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	env := &environment{session: sess}

	b, err := budget.New(cfg.Chunky.ConcurrencyBudget)
	if err != nil {
		env.Close()
		return nil, err
	}

	clientCfg := cfg.ClientConfig()
	clientCfg.Budget = b

	if cfg.Redis.Enabled() {
		env.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := env.redis.Ping(ctx).Err(); err != nil {
			env.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		clientCfg.Cache = cache.NewManager(env.redis)
	}

	env.client, err = client.New(sess, clientCfg)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return env, nil
}

// Close closes the session and the redis connection.
func (e *environment) Close() error {
	var errs []error
	if e.session != nil {
		errs = append(errs, e.session.Close())
	}
	if e.redis != nil {
		errs = append(errs, e.redis.Close())
	}
	return errors.Join(errs...)
}
