package database

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// healthTimeout bounds a single health ping.
const healthTimeout = 5 * time.Second

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Health is the result of pinging one store.
type Health struct {
	Backend string        `json:"backend"`
	Status  string        `json:"status"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency_ns"`
	Pool    *PoolStats    `json:"pool,omitempty"`
}

// Healthy reports whether the ping succeeded.
func (h Health) Healthy() bool {
	return h.Status == StatusHealthy
}

// PoolStats is a snapshot of pgx pool occupancy.
type PoolStats struct {
	Total    int32 `json:"total_conns"`
	Acquired int32 `json:"acquired_conns"`
	Idle     int32 `json:"idle_conns"`
	Max      int32 `json:"max_conns"`
}

// CheckHealth times ping under healthTimeout and records its outcome.
func CheckHealth(ctx context.Context, backend string, ping func(context.Context) error) Health {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	start := time.Now()
	err := ping(ctx)
	h := Health{Backend: backend, Status: StatusHealthy, Latency: time.Since(start)}
	if err != nil {
		h.Status = StatusUnhealthy
		h.Error = err.Error()
	}
	return h
}

// RedisPing adapts a go-redis client to CheckHealth.
func RedisPing(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
