package trustedcell

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sisungo/trustedcell/internal/wire"
)

func TestDecideRoundTripWithAttachedHost(t *testing.T) {
	c := New(WithShardCount(4), WithQueueCapacity(4))
	sec := c.NewSecurity(1000)
	if err := c.SetMe(context.Background(), sec, "alpha"); err != nil {
		t.Fatal(err)
	}

	if err := c.OpenHost("host-a", c.NewSecurity(0)); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	var got Decision
	go func() {
		d, err := c.Decide(context.Background(), sec, "docs", "alpha", "posix.open_ro")
		got = d
		done <- err
	}()

	line, err := c.ReadRequest(context.Background(), "host-a", 512)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := wire.ParseRequestLine(line)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.WriteResponse("host-a", wire.FormatResponse(parsed.ID, true, true)); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if !got.Allow {
		t.Fatal("expected allow")
	}

	// Second identical request should now hit the cache without a host round
	// trip.
	d2, err := c.Decide(context.Background(), sec, "docs", "alpha", "posix.open_ro")
	if err != nil {
		t.Fatal(err)
	}
	if !d2.Allow {
		t.Fatal("expected cached allow")
	}
}

func TestDecideInvalidFieldRejected(t *testing.T) {
	c := New()
	sec := c.NewSecurity(1000)
	longCategory := make([]byte, 200)
	for i := range longCategory {
		longCategory[i] = 'x'
	}
	_, err := c.Decide(context.Background(), sec, string(longCategory), "", "posix.open_ro")
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestOpenHostExclusivityAndStatus(t *testing.T) {
	c := New()
	if c.Status() != '0' {
		t.Fatal("expected detached status")
	}
	if err := c.OpenHost("h1", c.NewSecurity(0)); err != nil {
		t.Fatal(err)
	}
	if c.Status() != '1' {
		t.Fatal("expected attached status")
	}
	if err := c.OpenHost("h2", c.NewSecurity(0)); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := c.CloseHost("h1"); err != nil {
		t.Fatal(err)
	}
	if c.Status() != '0' {
		t.Fatal("expected detached status after close")
	}
}

func TestOpenHostRejectsCelledCaller(t *testing.T) {
	c := New()
	celled := c.NewSecurity(1000)
	if err := c.SetMe(context.Background(), celled, "alpha"); err != nil {
		t.Fatal(err)
	}
	if err := c.OpenHost("h1", celled); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
}

func TestMeRoundTrip(t *testing.T) {
	c := New()
	sec := c.NewSecurity(1000)
	if c.Me(sec) != "" {
		t.Fatal("expected empty cell text before assignment")
	}
	if err := c.SetMe(context.Background(), sec, "alpha"); err != nil {
		t.Fatal(err)
	}
	if c.Me(sec) != "alpha" {
		t.Fatalf("expected alpha, got %q", c.Me(sec))
	}
}

func TestDecideCancelledWithNoHostAttached(t *testing.T) {
	c := New(WithQueueCapacity(1))
	sec := c.NewSecurity(1000)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Decide(ctx, sec, "docs", "", "posix.open_ro")
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}
