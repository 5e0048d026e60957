// Package orchestrator implements the decision pipeline: a cache
// lookup, and on miss, a full round trip through the request queue and host
// session. It is the one place that stitches internal/cache, internal/queue
// and the cell reference-counting rules together.
//
// © 2025 trustedcell authors. MIT License.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/sisungo/trustedcell/internal/cache"
	"github.com/sisungo/trustedcell/internal/fingerprint"
	"github.com/sisungo/trustedcell/internal/queue"
)

// ErrCancelled is returned when ctx is cancelled or times out while waiting
// for a cache miss to resolve, distinct from a host-issued deny.
var ErrCancelled = errors.New("orchestrator: cancelled while awaiting host decision")

// RoundTripObserver is notified with the wall-clock duration of every host
// round trip that actually resolves with a response (enqueue through
// WaitForResponse returning), whether the host granted or denied it. A
// cache hit, or a round trip cut short by cancellation, never calls it.
// nil is a valid, zero-cost no-op.
type RoundTripObserver func(seconds float64)

// Orchestrator wires a decision cache to a request queue, implementing the
// cache-then-host-round-trip pipeline.
type Orchestrator struct {
	cache       *cache.Cache
	q           *queue.Queue
	onRoundTrip RoundTripObserver
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithRoundTripObserver registers a callback invoked after every host round
// trip with its wall-clock duration in seconds.
func WithRoundTripObserver(fn RoundTripObserver) Option {
	return func(o *Orchestrator) { o.onRoundTrip = fn }
}

// New constructs an Orchestrator over the given cache and queue. Both must
// outlive the Orchestrator.
func New(c *cache.Cache, q *queue.Queue, opts ...Option) *Orchestrator {
	o := &Orchestrator{cache: c, q: q}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Decide runs the full mediation pipeline: cache lookup; on miss, allocate
// a request id, acquire a transit cell reference, enqueue, wait for the
// host's response, and install the decision in the cache if the host marked
// it cacheable.
//
// fp.Cell is borrowed from the caller for the duration of this call; Decide
// never releases the caller's own reference, only the transit reference it
// acquires internally for the queued request.
func (o *Orchestrator) Decide(ctx context.Context, fp fingerprint.Fingerprint) (cache.Decision, error) {
	if d, ok := o.cache.Lookup(fp); ok {
		return d, nil
	}

	start := time.Now()
	id := o.q.NextID()
	o.q.Register(id)

	transit := fingerprint.Fingerprint{
		UID:      fp.UID,
		Cell:     fp.Cell.Acquire(),
		Category: fp.Category,
		Owner:    fp.Owner,
		Action:   fp.Action,
	}
	req := queue.Request{ID: id, FP: transit}

	if err := o.q.Send(ctx, req); err != nil {
		// Never enqueued: the transit reference is still ours to release.
		o.q.Unregister(id)
		transit.Cell.Release()
		return cache.Decision{}, wrapCancel(err)
	}

	// The request now belongs to whichever goroutine eventually Recv()s it
	// (hostsession.ReadRequest releases the transit reference once the
	// line is formatted); Decide must not touch it again past this point.

	permit, cacheable, err := o.q.WaitForResponse(ctx, id)
	if err != nil {
		o.q.Unregister(id)
		return cache.Decision{}, wrapCancel(err)
	}
	if o.onRoundTrip != nil {
		o.onRoundTrip(time.Since(start).Seconds())
	}

	d := cache.Decision{Allow: permit}
	if cacheable {
		o.cache.Add(fp, d)
	}
	return d, nil
}

func wrapCancel(err error) error {
	if errors.Is(err, queue.ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrCancelled
	}
	return err
}
