// Package redis is a Redis-backed token store, used by headless
// deployments that survive process restarts.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vicinity-chat/vicinity-go/internal/tokenstore"
)

const keyPrefix = "vicinity:token:"

// Redis is a tokenstore.Store backed by a Redis server.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to the Redis server at dsn. Stored tokens expire after ttl;
// a zero ttl keeps them until deleted.
func New(dsn string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, span := otel.Tracer("tokenstore-redis").Start(context.Background(), "redis.ping")
	defer span.End()
	if err := client.Ping(ctx).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to ping Redis")
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	span.SetStatus(codes.Ok, "Redis connected successfully")

	return &Redis{client: client, ttl: ttl}, nil
}

// Get returns the value for key or tokenstore.ErrNotFound.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	ctx, span := r.span(ctx, "redis.token_get", key)
	defer span.End()

	v, err := r.client.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return "", tokenstore.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get token")
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	return v, nil
}

// Set stores value under key with the configured TTL.
func (r *Redis) Set(ctx context.Context, key, value string) error {
	ctx, span := r.span(ctx, "redis.token_set", key)
	defer span.End()

	if err := r.client.Set(ctx, keyPrefix+key, value, r.ttl).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to set token")
		return fmt.Errorf("failed to set token: %w", err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (r *Redis) Delete(ctx context.Context, key string) error {
	ctx, span := r.span(ctx, "redis.token_delete", key)
	defer span.End()

	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to delete token")
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) span(ctx context.Context, name, key string) (context.Context, trace.Span) {
	return otel.Tracer("tokenstore-redis").Start(ctx, name,
		trace.WithAttributes(attribute.String("token.key", key)))
}
