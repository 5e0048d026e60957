// Package trustedcell is the public facade wiring the decision cache,
// request queue, host session, orchestrator, and credential adapter into one
// mediation core: the one type application code constructs and calls.
//
// © 2025 trustedcell authors. MIT License.
package trustedcell

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sisungo/trustedcell/internal/cache"
	"github.com/sisungo/trustedcell/internal/cellid"
	"github.com/sisungo/trustedcell/internal/credential"
	"github.com/sisungo/trustedcell/internal/fingerprint"
	"github.com/sisungo/trustedcell/internal/hostsession"
	"github.com/sisungo/trustedcell/internal/metrics"
	"github.com/sisungo/trustedcell/internal/orchestrator"
	"github.com/sisungo/trustedcell/internal/queue"
)

// Decision is the allow/deny verdict returned from Decide.
type Decision = cache.Decision

// HolderID identifies whoever is attempting to hold the host channel lease.
// See internal/hostsession.HolderID.
type HolderID = hostsession.HolderID

// Core is the assembled mediation pipeline: construct with New, then call
// Decide for every mediated operation and the host-side methods from
// whatever transport exposes them. This module ships no such transport.
type Core struct {
	cache   *cache.Cache
	queue   *queue.Queue
	session *hostsession.Session
	orch    *orchestrator.Orchestrator
	metrics metrics.Sink
	logger  *zap.Logger
}

// New assembles a Core from the given options.
func New(opts ...Option) *Core {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	sink := metrics.New(cfg.registry)
	logger := cfg.logger

	c := cache.New(
		cache.WithShardCount(cfg.shardCount),
		cache.WithShardCapacity(cfg.shardCapacity),
		cache.WithHitObserver(func(shard int) { sink.IncCacheHit(shard) }),
		cache.WithMissObserver(func(shard int) { sink.IncCacheMiss(shard) }),
		cache.WithEvictObserver(func(shard, evicted int) {
			sink.IncCacheEviction(shard, evicted)
			logger.Debug("cache shard eviction sweep", zap.Int("shard", shard), zap.Int("evicted", evicted))
		}),
	)
	q := queue.New(cfg.queueCapacity)

	return &Core{
		cache:   c,
		queue:   q,
		session: hostsession.New(q, hostsession.WithDisconnectPolicy(cfg.disconnectPolicy)),
		orch: orchestrator.New(c, q, orchestrator.WithRoundTripObserver(func(seconds float64) {
			sink.ObserveHostRoundTrip(seconds)
		})),
		metrics: sink,
		logger:  logger,
	}
}

// NewSecurity constructs a fresh, uncelled credential record for uid.
func (c *Core) NewSecurity(uid uint32) *credential.Security {
	return credential.New(uid)
}

// DeriveSecurity duplicates sec (credential fork/duplication), acquiring a
// new reference to its cell if any.
func (c *Core) DeriveSecurity(sec *credential.Security) *credential.Security {
	return credential.Derive(sec)
}

// ReleaseSecurity releases sec's cell reference. Must be called exactly once
// for every Security obtained from NewSecurity or DeriveSecurity.
func (c *Core) ReleaseSecurity(sec *credential.Security) {
	credential.Release(sec)
}

// Decide mediates one request on behalf of sec, implementing the full
// cache-then-host pipeline. category/owner/action are validated against
// their field-length bounds before anything else runs.
func (c *Core) Decide(ctx context.Context, sec *credential.Security, category, owner, action string) (Decision, error) {
	if err := fingerprint.Validate(category, owner, action); err != nil {
		return Decision{}, fmt.Errorf("trustedcell: %w: %v", ErrInvalid, err)
	}
	fp := fingerprint.Fingerprint{
		UID:      sec.InitialUID,
		Cell:     sec.Cell,
		Category: category,
		Owner:    owner,
		Action:   action,
	}
	c.metrics.SetQueueDepth(c.queue.Len())
	c.metrics.SetPendingCount(c.queue.PendingLen())
	d, err := c.orch.Decide(ctx, fp)
	if err != nil {
		if err == orchestrator.ErrCancelled {
			return Decision{}, fmt.Errorf("trustedcell: %w", ErrCancelled)
		}
		return Decision{}, err
	}
	return d, nil
}

// AssignCell runs the cell-assignment algorithm for sec, round-tripping
// through Decide under the reserved "~trustedcell" category whenever sec is
// already celled; a denial is ignored when the new identifier equals the
// current one.
func (c *Core) AssignCell(ctx context.Context, sec *credential.Security, text string) error {
	err := credential.AssignCell(ctx, c.orch, sec, text)
	switch {
	case err == nil:
		return nil
	case err == credential.ErrDenied:
		return fmt.Errorf("trustedcell: %w", ErrDenied)
	case err == orchestrator.ErrCancelled:
		return fmt.Errorf("trustedcell: %w", ErrCancelled)
	case err == cellid.ErrInvalid:
		return fmt.Errorf("trustedcell: %w", ErrInvalid)
	default:
		return err
	}
}

// CanAccess implements the ptrace-style cross-process access predicate:
// two processes may access each other only if their cells match.
func (c *Core) CanAccess(a, b *credential.Security) bool {
	return credential.CanAccess(a, b)
}

// DenyMountMutation implements the hard-deny for mount-mutating operations
// while celled.
func (c *Core) DenyMountMutation(sec *credential.Security) error {
	if err := credential.DenyMountMutation(sec); err != nil {
		return fmt.Errorf("trustedcell: %w", ErrDenied)
	}
	return nil
}

/* -------------------------------------------------------------------------
   Pseudo-filesystem surface: plain methods standing in for the
   'status', 'me', and 'host' securityfs/FUSE nodes. Wiring an actual
   in-kernel or FUSE filesystem is out of scope here, and no adapter that
   exposes these methods over a real transport is included.
   ------------------------------------------------------------------------- */

// Status returns the single byte the 'status' pseudo-file reads: '1' if a
// host is currently attached, '0' otherwise.
func (c *Core) Status() byte {
	return c.session.StatusByte()
}

// Me returns the text of sec's current cell, or "" if uncelled (the 'me'
// pseudo-file's read contract).
func (c *Core) Me(sec *credential.Security) string {
	if sec.Cell == nil {
		return ""
	}
	return sec.Cell.Text()
}

// SetMe is the 'me' pseudo-file's write contract: assign sec a new cell via
// AssignCell.
func (c *Core) SetMe(ctx context.Context, sec *credential.Security, text string) error {
	return c.AssignCell(ctx, sec, text)
}

// OpenHost attaches holder as the host, rejecting a celled caller (the
// 'host' pseudo-file's open contract).
func (c *Core) OpenHost(holder HolderID, sec *credential.Security) error {
	err := c.session.Open(holder, sec.Cell != nil)
	switch err {
	case nil:
		c.logger.Info("host channel attached")
		return nil
	case hostsession.ErrBusy:
		return fmt.Errorf("trustedcell: %w", ErrBusy)
	case hostsession.ErrCelled:
		return fmt.Errorf("trustedcell: %w", ErrDenied)
	default:
		return err
	}
}

// CloseHost detaches holder from the host channel.
func (c *Core) CloseHost(holder HolderID) error {
	if err := c.session.Close(holder); err != nil {
		return fmt.Errorf("trustedcell: %w", ErrNotReady)
	}
	c.logger.Info("host channel detached")
	return nil
}

// ReadRequest blocks for the oldest outstanding request and returns it
// formatted as a wire line (the 'host' pseudo-file's read contract).
func (c *Core) ReadRequest(ctx context.Context, holder HolderID, bufLen int) (string, error) {
	line, err := c.session.ReadRequest(ctx, holder, bufLen)
	switch err {
	case nil:
		return line, nil
	case hostsession.ErrNotHost:
		return "", fmt.Errorf("trustedcell: %w", ErrNotReady)
	case queue.ErrCancelled:
		return "", fmt.Errorf("trustedcell: %w", ErrCancelled)
	case queue.ErrClosed:
		return "", fmt.Errorf("trustedcell: %w", ErrNoData)
	default:
		return "", err
	}
}

// WriteResponse parses line and resolves the matching pending request (the
// 'host' pseudo-file's write contract).
func (c *Core) WriteResponse(holder HolderID, line string) error {
	err := c.session.WriteResponse(holder, line)
	switch err {
	case nil:
		return nil
	case hostsession.ErrNotHost:
		return fmt.Errorf("trustedcell: %w", ErrNotReady)
	default:
		c.metrics.IncHostParseError()
		c.logger.Warn("rejected host response line", zap.Error(err))
		return fmt.Errorf("trustedcell: %w", ErrInvalid)
	}
}
