package trustedcell

// config.go defines Core's functional options: a private config struct
// filled with defaults, only influenced from outside through Option values,
// so the struct itself never needs to be exported.
//
// © 2025 trustedcell authors. MIT License.

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sisungo/trustedcell/internal/cache"
	"github.com/sisungo/trustedcell/internal/hostsession"
	"github.com/sisungo/trustedcell/internal/queue"
)

// HostDisconnectPolicy re-exports internal/hostsession's policy enum so
// callers never need to import an internal package.
type HostDisconnectPolicy = hostsession.DisconnectPolicy

const (
	KeepWaiting = hostsession.KeepWaiting
	FailPending = hostsession.FailPending
)

type config struct {
	shardCount       int
	shardCapacity    int
	queueCapacity    int
	disconnectPolicy HostDisconnectPolicy
	registry         *prometheus.Registry
	logger           *zap.Logger
}

func defaultConfig() *config {
	return &config{
		shardCount:       cache.DefaultShardCount,
		shardCapacity:    cache.DefaultShardCapacity,
		queueCapacity:    queue.DefaultCapacity,
		disconnectPolicy: KeepWaiting,
		logger:           zap.NewNop(),
	}
}

// Option configures a Core at construction time.
type Option func(*config)

// WithShardCount overrides the decision cache's shard count.
func WithShardCount(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.shardCount = n
		}
	}
}

// WithShardCapacity overrides the decision cache's per-shard capacity.
func WithShardCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.shardCapacity = n
		}
	}
}

// WithQueueCapacity overrides the outbound request queue's bound.
func WithQueueCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueCapacity = n
		}
	}
}

// WithHostDisconnectPolicy overrides the default KeepWaiting policy: FailPending resolves every pending request as a denial
// the moment the host detaches, instead of leaving requesters blocked until
// a new host attaches.
func WithHostDisconnectPolicy(p HostDisconnectPolicy) Option {
	return func(c *config) { c.disconnectPolicy = p }
}

// WithMetrics enables Prometheus metrics collection. Passing nil disables
// metrics (the default): a noop sink is used and the hot path pays nothing.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) { c.registry = reg }
}

// WithLogger plugs an external zap.Logger. Core never logs on the Decide
// hot path; only slow events (host attach/detach, eviction sweeps, malformed
// host lines) are emitted.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
