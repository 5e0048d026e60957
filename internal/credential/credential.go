// Package credential implements the per-process security record, the
// cell-assignment algorithm, a ptrace-style cross-process access predicate,
// and a hard-deny for mount-mutating operations while celled.
//
// © 2025 trustedcell authors. MIT License.
package credential

import (
	"context"
	"errors"

	"github.com/sisungo/trustedcell/internal/cellid"
	"github.com/sisungo/trustedcell/internal/fingerprint"
	"github.com/sisungo/trustedcell/internal/orchestrator"
)

// ErrDenied is returned by DenyMountMutation for a celled caller.
var ErrDenied = errors.New("credential: operation denied for a celled process")

// CellChangeCategory and CellChangeAction name the synthetic request a
// change of cell (including a self-transition) is decided under.
const (
	CellChangeCategory = "~trustedcell"
	CellChangeAction   = "trustedcell.change_cell"
)

// Security is the per-process (per-credential, in LSM terms) record: the
// uid that created it and the cell it currently carries, if any. Mirrors
// trustedcell_security_t, with reference counting on Cell instead of a
// kref shared with the blob allocator.
type Security struct {
	InitialUID uint32
	Cell       *cellid.ID
}

// New constructs a fresh, uncelled Security for uid (process creation /
// cred_prepare with no parent to inherit from).
func New(uid uint32) *Security {
	return &Security{InitialUID: uid}
}

// Derive shallow-copies sec for a forked/duplicated credential, acquiring a
// new reference to its cell if any.
func Derive(sec *Security) *Security {
	return &Security{InitialUID: sec.InitialUID, Cell: sec.Cell.Acquire()}
}

// Release drops the security record's cell reference (credential free).
// Safe to call on an uncelled Security (Cell is nil).
func Release(sec *Security) {
	sec.Cell.Release()
}

// AssignCell validates the new identifier, and if sec already carries a
// cell, unconditionally runs the decision pipeline under the reserved
// "~trustedcell" category before replacing it. A process adopting a cell
// for the first time (sec.Cell == nil) needs no authorization: initial
// adoption is unconditional, re-assignment is always mediated. A denial is
// only forgiven when newText names the cell sec already carries (a
// self-transition still round-trips through the host, it just ignores the
// resulting denial).
func AssignCell(ctx context.Context, o *orchestrator.Orchestrator, sec *Security, newText string) error {
	newID, err := cellid.New(newText)
	if err != nil {
		return err
	}

	if sec.Cell != nil {
		selfTransition := sec.Cell.Text() == newText
		fp := fingerprint.Fingerprint{
			UID:      sec.InitialUID,
			Cell:     sec.Cell,
			Category: CellChangeCategory,
			Owner:    newText,
			Action:   CellChangeAction,
		}
		d, err := o.Decide(ctx, fp)
		if err != nil {
			newID.Release()
			return err
		}
		if !d.Allow && !selfTransition {
			newID.Release()
			return ErrDenied
		}
		sec.Cell.Release()
	}
	sec.Cell = newID
	return nil
}

// CanAccess implements the ptrace-style cross-process access predicate:
// two processes may observe/influence each other only if both are
// uncelled, or both carry the identical cell text.
func CanAccess(a, b *Security) bool {
	if a.Cell == nil && b.Cell == nil {
		return true
	}
	if a.Cell == nil || b.Cell == nil {
		return false
	}
	return a.Cell.Equal(b.Cell)
}

// DenyMountMutation implements the hard-deny for mount-mutating hooks
// (pivot_root, move_mount): any celled process is unconditionally refused,
// without a host round trip.
func DenyMountMutation(sec *Security) error {
	if sec.Cell != nil {
		return ErrDenied
	}
	return nil
}
