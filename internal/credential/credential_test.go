package credential

import (
	"context"
	"testing"

	"github.com/sisungo/trustedcell/internal/cache"
	"github.com/sisungo/trustedcell/internal/cellid"
	"github.com/sisungo/trustedcell/internal/orchestrator"
	"github.com/sisungo/trustedcell/internal/queue"
)

func TestAssignCellFirstAdoptionUnconditional(t *testing.T) {
	c := cache.New(cache.WithShardCount(4))
	q := queue.New(4)
	o := orchestrator.New(c, q)

	sec := New(1000)
	if err := AssignCell(context.Background(), o, sec, "alpha"); err != nil {
		t.Fatal(err)
	}
	if sec.Cell == nil || sec.Cell.Text() != "alpha" {
		t.Fatalf("expected cell alpha, got %+v", sec.Cell)
	}
	if q.Len() != 0 || q.PendingLen() != 0 {
		t.Fatal("first adoption must not round-trip through the host")
	}
}

// TestAssignCellSelfTransitionStillMediatesButForgivesDenial exercises the
// secfs_me_write behavior this is grounded on: a self-transition still
// round-trips through Decide, it just ignores the resulting denial.
func TestAssignCellSelfTransitionStillMediatesButForgivesDenial(t *testing.T) {
	c := cache.New(cache.WithShardCount(4))
	q := queue.New(4)
	o := orchestrator.New(c, q)

	sec := New(1000)
	if err := AssignCell(context.Background(), o, sec, "alpha"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- AssignCell(context.Background(), o, sec, "alpha")
	}()

	req, err := q.Recv(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if req.FP.Category != CellChangeCategory || req.FP.Action != CellChangeAction {
		t.Fatalf("self-transition must still round-trip through Decide, got %+v", req.FP)
	}
	if err := q.PutResponse(req.ID, false, false); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("a denied self-transition must still be forgiven, got %v", err)
	}
	if sec.Cell.Text() != "alpha" {
		t.Fatalf("expected cell to remain alpha, got %q", sec.Cell.Text())
	}
}

func TestAssignCellReassignmentMediatedAllow(t *testing.T) {
	c := cache.New(cache.WithShardCount(4))
	q := queue.New(4)
	o := orchestrator.New(c, q)

	sec := New(1000)
	if err := AssignCell(context.Background(), o, sec, "alpha"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- AssignCell(context.Background(), o, sec, "beta")
	}()

	req, err := q.Recv(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if req.FP.Category != CellChangeCategory || req.FP.Action != CellChangeAction {
		t.Fatalf("unexpected mediation request: %+v", req.FP)
	}
	if err := q.PutResponse(req.ID, true, false); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if sec.Cell.Text() != "beta" {
		t.Fatalf("expected reassignment to beta, got %q", sec.Cell.Text())
	}
}

func TestAssignCellReassignmentDenied(t *testing.T) {
	c := cache.New(cache.WithShardCount(4))
	q := queue.New(4)
	o := orchestrator.New(c, q)

	sec := New(1000)
	if err := AssignCell(context.Background(), o, sec, "alpha"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- AssignCell(context.Background(), o, sec, "beta")
	}()

	req, err := q.Recv(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := q.PutResponse(req.ID, false, false); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != ErrDenied {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	if sec.Cell.Text() != "alpha" {
		t.Fatalf("denied reassignment must leave the original cell, got %q", sec.Cell.Text())
	}
}

func TestCanAccess(t *testing.T) {
	uncelled := New(1000)
	alpha := New(1001)
	alphaID, _ := cellid.New("alpha")
	alpha.Cell = alphaID
	other := New(1002)
	otherID, _ := cellid.New("alpha")
	other.Cell = otherID
	beta := New(1003)
	betaID, _ := cellid.New("beta")
	beta.Cell = betaID

	if !CanAccess(uncelled, New(1004)) {
		t.Fatal("two uncelled processes should be able to access each other")
	}
	if CanAccess(uncelled, alpha) {
		t.Fatal("uncelled vs celled must be denied")
	}
	if !CanAccess(alpha, other) {
		t.Fatal("identical cell text should be allowed")
	}
	if CanAccess(alpha, beta) {
		t.Fatal("different cells must be denied")
	}
}

func TestDenyMountMutation(t *testing.T) {
	uncelled := New(1000)
	if err := DenyMountMutation(uncelled); err != nil {
		t.Fatalf("uncelled process should be allowed, got %v", err)
	}

	celled := New(1001)
	id, _ := cellid.New("alpha")
	celled.Cell = id
	if err := DenyMountMutation(celled); err != ErrDenied {
		t.Fatalf("expected ErrDenied for celled process, got %v", err)
	}
}
