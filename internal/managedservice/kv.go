package managedservice

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cuemby/temps/internal/runtime"
)

// KVImage is the default container image for the KV managed service.
const KVImage = "redis:7-alpine"

// NewKVProbe returns a Probe that issues a PING against host:port
// authenticated with password, the KV store's readiness check (spec §4.5).
func NewKVProbe(password string) Probe {
	return func(ctx context.Context, host string, port int) error {
		client := goredis.NewClient(&goredis.Options{
			Addr:     fmt.Sprintf("%s:%d", host, port),
			Password: password,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("kv ping failed: %w", err)
		}
		return nil
	}
}

// NewKVSupervisor builds a Supervisor for the KV managed service.
func NewKVSupervisor(rt *runtime.Runtime, fixedName, password string, preferredPort int) *Supervisor {
	return NewSupervisor(rt, "kv", fixedName, KVImage, preferredPort, 6379, password, NewKVProbe(password))
}

// KVHandle is the cloneable typed client handle publishable once the
// supervisor reaches Ready (spec §4.5): a pooled go-redis connection that
// remains valid across transient backend reconnects (go-redis reconnects
// internally; this handle never needs replacing).
type KVHandle struct {
	client *goredis.Client
}

// NewKVHandle builds a KVHandle for the Supervisor's current endpoint. The
// caller must only call this once the supervisor is Ready.
func NewKVHandle(s *Supervisor, password string) (*KVHandle, error) {
	host, port, ok := s.Endpoint()
	if !ok {
		return nil, fmt.Errorf("kv supervisor not ready")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
	})
	return &KVHandle{client: client}, nil
}

// Unwrap returns the underlying go-redis client for advanced operations.
func (h *KVHandle) Unwrap() *goredis.Client {
	return h.client
}

// Close releases the underlying connection pool.
func (h *KVHandle) Close() error {
	return h.client.Close()
}
