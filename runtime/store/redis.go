// Package store provides a redis-backed session variable store, so session
// truth survives process restarts and can be shared with the surrounding
// chat system.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const opTimeout = 2 * time.Second

// Option configures a Redis store.
type Option func(*Redis)

// WithPrefix namespaces every key, for sharing one redis with other tenants.
func WithPrefix(prefix string) Option {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithTTL expires session variables after the given duration. Zero means no
// expiry.
func WithTTL(ttl time.Duration) Option {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// WithNameCheck installs the namespace rule applied to Set and Declare.
func WithNameCheck(fn func(string) error) Option {
	return func(r *Redis) {
		r.checkName = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Redis) {
		r.logger = logger
	}
}

// Redis stores session variables in redis. Reads that fail report the
// variable as absent; writes that fail return the error to the caller.
type Redis struct {
	client    redis.UniversalClient
	prefix    string
	ttl       time.Duration
	checkName func(string) error
	logger    *slog.Logger
}

func NewRedis(client redis.UniversalClient, opts ...Option) *Redis {
	r := &Redis{
		client:    client,
		prefix:    "screenloom",
		checkName: func(string) error { return nil },
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) key(name string) string {
	return r.prefix + ":var:" + name
}

func (r *Redis) Get(name string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	v, err := r.client.Get(ctx, r.key(name)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		r.logger.Error("redis get failed", "name", name, "error", err)
		return "", false
	}
	return v, true
}

func (r *Redis) Set(name, value string) error {
	if err := r.checkName(name); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return r.client.Set(ctx, r.key(name), value, r.ttl).Err()
}

// Declare creates the variable with a default unless it already exists.
func (r *Redis) Declare(name, def string) error {
	if err := r.checkName(name); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return r.client.SetNX(ctx, r.key(name), def, r.ttl).Err()
}

func (r *Redis) Exists(name string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	n, err := r.client.Exists(ctx, r.key(name)).Result()
	if err != nil {
		r.logger.Error("redis exists failed", "name", name, "error", err)
		return false
	}
	return n > 0
}

// SetSystem bypasses the namespace rule; it is the session-side write path.
func (r *Redis) SetSystem(name, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := r.client.Set(ctx, r.key(name), value, r.ttl).Err(); err != nil {
		r.logger.Error("redis set failed", "name", name, "error", err)
	}
}

func (r *Redis) Snapshot() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	out := make(map[string]string)
	pattern := r.key("*")
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	stripLen := len(r.key(""))
	for iter.Next(ctx) {
		key := iter.Val()
		v, err := r.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		out[key[stripLen:]] = v
	}
	if err := iter.Err(); err != nil {
		r.logger.Error("redis scan failed", "error", err)
	}
	return out
}
