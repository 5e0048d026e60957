// Package hostsession implements the exclusive host lease and the read/write
// endpoints a host process uses to pull requests and push responses
//. At most one external process may hold the channel at a time.
//
// © 2025 trustedcell authors. MIT License.
package hostsession

import (
	"context"
	"errors"
	"sync"

	"github.com/sisungo/trustedcell/internal/queue"
	"github.com/sisungo/trustedcell/internal/wire"
)

// ErrBusy is returned by Open when a different holder already attached.
var ErrBusy = errors.New("hostsession: already attached")

// ErrNotHost is returned by Close/Read/Write when called by a holder that
// does not currently own the lease (or when no host is attached at all).
var ErrNotHost = errors.New("hostsession: caller is not the attached host")

// ErrCelled is returned by Open when the caller itself carries a cell
// identity — a celled process may never also be the policy host
// (secfs_host_open's trustedcell_get_current_cell_id() check).
var ErrCelled = errors.New("hostsession: caller carries a cell identity and may not attach as host")

// HolderID identifies whoever is attempting to hold the lease. In the
// original LSM this is a kernel tgid; here it is any comparable value the
// caller's transport supplies (a connection id, a pid, ...).
type HolderID any

// DisconnectPolicy selects what happens to already-pending requests when the
// host detaches.
type DisconnectPolicy int

const (
	// KeepWaiting leaves pending requesters blocked until a new host opens
	// the channel and eventually answers them. This is the default.
	KeepWaiting DisconnectPolicy = iota
	// FailPending resolves every outstanding pending entry as a denial as
	// soon as the host detaches, so requesters observe a prompt failure
	// instead of hanging until a new host attaches.
	FailPending
)

// Session guards the single-host invariant and exposes the read/write
// endpoints. It wraps a *queue.Queue, which remains reachable so that a
// Session can be recreated (e.g. after a host crash) without losing queued
// state.
type Session struct {
	q      *queue.Queue
	policy DisconnectPolicy

	mu      sync.Mutex
	current HolderID
	open    bool
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithDisconnectPolicy overrides the default KeepWaiting policy.
func WithDisconnectPolicy(p DisconnectPolicy) Option {
	return func(s *Session) { s.policy = p }
}

// New constructs a Session bound to q.
func New(q *queue.Queue, opts ...Option) *Session {
	s := &Session{q: q}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open attempts to attach holder as the current host. celled reports whether
// the caller itself carries a cell identity (the caller's credential adapter
// decides this; hostsession has no notion of credentials).
func (s *Session) Open(holder HolderID, celled bool) error {
	if celled {
		return ErrCelled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open && s.current != holder {
		return ErrBusy
	}
	s.current = holder
	s.open = true
	return nil
}

// Close detaches holder, if it is the current host. Under KeepWaiting,
// outstanding pending responses are left untouched and requesters keep
// blocking until a new host opens the channel; under FailPending, every
// unresolved pending entry is resolved as a denial.
func (s *Session) Close(holder HolderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open || s.current != holder {
		return ErrNotHost
	}
	s.open = false
	s.current = nil
	if s.policy == FailPending {
		s.q.FailAllPending()
	}
	return nil
}

// Attached reports whether a host is currently attached (the 'status' file's
// single byte).
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// StatusByte returns the single byte the 'status' pseudo-file reads.
func (s *Session) StatusByte() byte {
	if s.Attached() {
		return '1'
	}
	return '0'
}

func (s *Session) isHolder(holder HolderID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open && s.current == holder
}

// ReadRequest blocks for the oldest outstanding request and formats it as a
// line, requiring the caller to supply a buffer of at least
// wire.MinReadBuffer bytes, matching the real file's contract.
func (s *Session) ReadRequest(ctx context.Context, holder HolderID, bufLen int) (string, error) {
	if !s.isHolder(holder) {
		return "", ErrNotHost
	}
	if bufLen < wire.MinReadBuffer {
		return "", errors.New("hostsession: read buffer must be at least 512 bytes")
	}
	req, err := s.q.Recv(ctx)
	if err != nil {
		return "", err
	}
	cellText := ""
	if req.FP.Cell != nil {
		cellText = req.FP.Cell.Text()
	}
	line := wire.FormatRequest(req.ID, req.FP.UID, cellText, req.FP.Category, req.FP.Owner, req.FP.Action)
	// The request's owned cell reference and strings have now been handed
	// off as an immutable line; release the reference the orchestrator
	// acquired for transit.
	req.FP.Cell.Release()
	return line, nil
}

// WriteResponse parses line and resolves the matching pending entry.
func (s *Session) WriteResponse(holder HolderID, line string) error {
	if !s.isHolder(holder) {
		return ErrNotHost
	}
	resp, err := wire.ParseResponse(line)
	if err != nil {
		return err
	}
	return s.q.PutResponse(resp.ID, resp.Permit, resp.Cacheable)
}
