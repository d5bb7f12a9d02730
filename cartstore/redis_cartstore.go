// cartstore/redis_cartstore.go

package cartstore

import (
	"context"
	"time"

	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/norun9/rocketshoes-cart/cart"
)

// RedisCartStore is a cart store backed by Redis. Each session is a hash
// whose CartField field holds the encoded cart.
type RedisCartStore struct {
	client *redis.Client
	codec  Codec
	log    logrus.FieldLogger
}

// NewRedisCartStore accepts a Redis connection string ("redis://..." URL or
// plain "hostname:port") and returns a store instance.
func NewRedisCartStore(redisAddr string, codec Codec, log logrus.FieldLogger) *RedisCartStore {
	opts, err := redis.ParseURL(redisAddr)
	if err != nil {
		opts = &redis.Options{
			Addr:         redisAddr,
			MinIdleConns: 1,
			MaxRetries:   30,
			DialTimeout:  30 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			PoolSize:     10,
			PoolTimeout:  4 * time.Second,
			IdleTimeout:  180 * time.Second,
		}
	}

	client := redis.NewClient(opts)
	client.AddHook(redisotel.NewTracingHook())

	return newRedisCartStore(client, codec, log)
}

func newRedisCartStore(client *redis.Client, codec Codec, log logrus.FieldLogger) *RedisCartStore {
	return &RedisCartStore{
		client: client,
		codec:  codec,
		log:    log.WithField("store", "redis"),
	}
}

// Initialize waits for Redis to answer pings.
func (r *RedisCartStore) Initialize(ctx context.Context) error {
	r.log.Info("initializing connection...")
	if err := waitReady(ctx, r.log, r.Ping); err != nil {
		return errors.Wrap(err, "redis")
	}
	r.log.Info("RedisCartStore initialized successfully")
	return nil
}

// GetCart retrieves a cart from Redis, returning an empty one if it doesn't exist.
func (r *RedisCartStore) GetCart(ctx context.Context, sessionID string) (cart.Cart, error) {
	r.log.WithField("session_id", sessionID).Debug("GetCart called")

	val, err := r.client.HGet(ctx, sessionID, CartField).Bytes()
	if err == redis.Nil {
		return cart.Cart{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis HGet error")
	}
	return decodeStored(r.codec, val, sessionID)
}

// SetCart overwrites the session's cart field.
func (r *RedisCartStore) SetCart(ctx context.Context, sessionID string, c cart.Cart) error {
	r.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"lines":      len(c),
	}).Debug("SetCart called")

	bin, err := r.codec.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to encode cart")
	}
	if err := r.client.HSet(ctx, sessionID, CartField, bin).Err(); err != nil {
		return errors.Wrap(err, "redis HSet error")
	}
	return nil
}

// Ping checks if Redis is alive.
func (r *RedisCartStore) Ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.client.Ping(pingCtx).Result(); err != nil {
		r.log.WithError(err).Warn("Ping failed")
		return false
	}
	return true
}

// Close releases the underlying connection pool.
func (r *RedisCartStore) Close() error {
	return r.client.Close()
}
