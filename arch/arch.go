// Package arch describes target machine register layouts for the evaluator.
//
// An Arch is supplied by the decoding collaborator and is read-only to the
// execution engine. It declares the address size, byte order, stack pointer,
// and the full set of registers with their aliasing relationships: every
// register names a full-width parent whose value it is a byte slice of, and
// an extension policy governing how partial-width writes update the parent's
// untouched high bits.
package arch

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/exp/maps"
)

// ExtendPolicy governs how a write to a sub-register updates the bits of its
// full-width parent that the sub-register does not cover.
type ExtendPolicy int

const (
	// NoExtend preserves all parent bits outside the sub-register's slice.
	NoExtend ExtendPolicy = iota

	// ZeroExtendToFullWidth clears all parent bits above the sub-register.
	ZeroExtendToFullWidth

	// SignExtendToFullWidth fills all parent bits above the sub-register
	// with the written value's sign bit.
	SignExtendToFullWidth
)

func (p ExtendPolicy) String() string {
	switch p {
	case NoExtend:
		return "no_extend"
	case ZeroExtendToFullWidth:
		return "zero_extend"
	case SignExtendToFullWidth:
		return "sign_extend"
	default:
		return "unknown"
	}
}

// RegisterInfo describes one architectural register.
type RegisterInfo struct {
	// Name is the canonical register name.
	Name string

	// Size is the register width in bytes.
	Size int

	// Offset is the byte offset of this register within its full-width
	// parent.
	Offset int

	// FullWidth names the full-width parent register. A register that is
	// its own parent is a full-width register and is the only register in
	// its family with independent storage.
	FullWidth string

	// Extend is the policy applied when this register is written.
	Extend ExtendPolicy
}

// Arch is a target machine description.
type Arch struct {
	// Name identifies the architecture, e.g. "x86_64".
	Name string

	// AddressSize is the pointer width in bytes; it bounds the address
	// space at 2^(AddressSize*8).
	AddressSize int

	// ByteOrder is the memory byte order for multi-byte transfers.
	ByteOrder binary.ByteOrder

	// StackPointer names the stack pointer register used by push and pop.
	StackPointer string

	regs map[string]RegisterInfo
}

// New builds and validates an architecture description. Every register's
// chain of full-width parents must terminate at a register that is its own
// parent, and the stack pointer must be a declared register.
func New(name string, addressSize int, order binary.ByteOrder, stackPointer string, regs []RegisterInfo) (*Arch, error) {
	if addressSize <= 0 || addressSize > 8 {
		return nil, fmt.Errorf("arch %s: address size %d out of range", name, addressSize)
	}

	a := &Arch{
		Name:         name,
		AddressSize:  addressSize,
		ByteOrder:    order,
		StackPointer: stackPointer,
		regs:         make(map[string]RegisterInfo, len(regs)),
	}
	for _, r := range regs {
		if _, dup := a.regs[r.Name]; dup {
			return nil, fmt.Errorf("arch %s: duplicate register %q", name, r.Name)
		}
		a.regs[r.Name] = r
	}

	for _, r := range regs {
		if err := a.validateChain(r); err != nil {
			return nil, fmt.Errorf("arch %s: %w", name, err)
		}
	}

	if _, ok := a.regs[stackPointer]; !ok {
		return nil, fmt.Errorf("arch %s: stack pointer %q is not a declared register", name, stackPointer)
	}

	return a, nil
}

// validateChain walks the full-width parent chain and requires it to
// terminate at a self-parented register within len(regs) hops.
func (a *Arch) validateChain(r RegisterInfo) error {
	seen := 0
	cur := r
	for cur.Name != cur.FullWidth {
		parent, ok := a.regs[cur.FullWidth]
		if !ok {
			return fmt.Errorf("register %q: full-width parent %q not declared", r.Name, cur.FullWidth)
		}
		if cur.Offset+cur.Size > parent.Size {
			return fmt.Errorf("register %q: slice [%d,%d) exceeds parent %q width %d",
				cur.Name, cur.Offset, cur.Offset+cur.Size, parent.Name, parent.Size)
		}
		seen++
		if seen > len(a.regs) {
			return fmt.Errorf("register %q: full-width parent chain does not terminate", r.Name)
		}
		cur = parent
	}
	return nil
}

// Register looks up a register description by name.
func (a *Arch) Register(name string) (RegisterInfo, bool) {
	r, ok := a.regs[name]
	return r, ok
}

// Registers returns a snapshot of all register descriptions.
func (a *Arch) Registers() map[string]RegisterInfo {
	return maps.Clone(a.regs)
}
