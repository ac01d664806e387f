package probe

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/torosent/connprobe/internal/config"
	"github.com/torosent/connprobe/internal/dialer"
	"github.com/torosent/connprobe/internal/tracing"
)

// Redis probes a Redis server with PING.
type Redis struct {
	opts  *redis.Options
	fresh bool

	mu     sync.Mutex
	shared *redis.Client
}

// NewRedis creates a redis prober. Connections are dialed by the
// instrumented dialer; TLS, when enabled, is done there as well.
func NewRedis(cfg config.ProbeConfig, tracers tracing.Tracers) *Redis {
	d := dialer.New(tracers, tlsConfig(cfg))
	dial := d.DialContext
	if cfg.TLS {
		dial = d.DialTLSContext
	}
	opts := &redis.Options{
		Addr:     cfg.Target,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Dialer:   dial,
		Protocol: 2,
		// Retries belong to the client under test, not to the probe.
		MaxRetries:      -1,
		PoolSize:        1,
		DisableIdentity: true,
	}
	if cfg.Timeout > 0 {
		opts.DialTimeout = cfg.Timeout
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}
	return &Redis{opts: opts, fresh: cfg.FreshConnections}
}

func (p *Redis) Name() string { return string(config.ProbeKindRedis) }

func (p *Redis) Probe(ctx context.Context) error {
	client := p.client()
	if p.fresh {
		defer client.Close()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", p.opts.Addr, err)
	}
	return nil
}

func (p *Redis) client() *redis.Client {
	if p.fresh {
		return redis.NewClient(p.opts)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shared == nil {
		p.shared = redis.NewClient(p.opts)
	}
	return p.shared
}

func (p *Redis) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shared == nil {
		return nil
	}
	err := p.shared.Close()
	p.shared = nil
	return err
}
