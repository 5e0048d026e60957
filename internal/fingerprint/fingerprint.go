// Package fingerprint implements the cache key / request payload tuple
// (uid, cell, category, owner, action) and its owner-qualification-aware
// equality rule.
//
// © 2025 trustedcell authors. MIT License.
package fingerprint

import (
	"errors"
	"hash/maphash"
	"strings"

	"github.com/sisungo/trustedcell/internal/cellid"
)

// Field length limits for the bounded string fields.
const (
	MaxCategoryLen = 47
	MaxActionLen   = 31
	MaxOwnerLen    = cellid.MaxLen
)

// ErrInvalid is returned when a category, owner or action exceeds its bound.
var ErrInvalid = errors.New("fingerprint: invalid field")

// OwnerQualifiedPrefix marks a category as owner-qualified: the owner field
// participates in equality for such categories.
const OwnerQualifiedPrefix = "~"

// Fingerprint is the tuple used both as a cache key and as a request
// payload. Cell is a borrowed or owned *cellid.ID depending on context; this
// package never acquires or releases it — callers own that lifecycle.
type Fingerprint struct {
	UID      uint32
	Cell     *cellid.ID
	Category string
	Owner    string
	Action   string
}

// Validate checks the bounded string fields. Cell identity validity is the
// identity store's concern (cellid.New), not this package's.
func Validate(category, owner, action string) error {
	if len(category) > MaxCategoryLen {
		return ErrInvalid
	}
	if len(owner) > MaxOwnerLen {
		return ErrInvalid
	}
	if len(action) > MaxActionLen {
		return ErrInvalid
	}
	return nil
}

// OwnerQualified reports whether category begins with '~', meaning Owner
// participates in equality and hashing.
func OwnerQualified(category string) bool {
	return strings.HasPrefix(category, OwnerQualifiedPrefix)
}

// Equivalent implements the fingerprint-equality rule: owner only
// participates when the category is owner-qualified.
func (f Fingerprint) Equivalent(other Fingerprint) bool {
	if f.UID != other.UID {
		return false
	}
	if !f.Cell.Equal(other.Cell) {
		return false
	}
	if f.Category != other.Category {
		return false
	}
	if f.Action != other.Action {
		return false
	}
	if OwnerQualified(f.Category) {
		return f.Owner == other.Owner
	}
	return true
}

// Hash computes a shard-selection hash. It deliberately omits Owner unless
// the category is owner-qualified, so that two fingerprints Equivalent
// considers equal always hash identically and therefore always land in the
// same cache shard.
func (f Fingerprint) Hash(seed maphash.Seed) uint64 {
	var h maphash.Hash
	h.SetSeed(seed)

	var uidBuf [4]byte
	uidBuf[0] = byte(f.UID)
	uidBuf[1] = byte(f.UID >> 8)
	uidBuf[2] = byte(f.UID >> 16)
	uidBuf[3] = byte(f.UID >> 24)
	h.Write(uidBuf[:])

	if f.Cell != nil {
		h.WriteString(f.Cell.Text())
	}
	h.WriteByte(0)
	h.WriteString(f.Category)
	h.WriteByte(0)
	h.WriteString(f.Action)
	h.WriteByte(0)
	if OwnerQualified(f.Category) {
		h.WriteString(f.Owner)
	}
	return h.Sum64()
}
