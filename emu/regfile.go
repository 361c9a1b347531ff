// Package emu provides concrete interpretation of low-level IL instruction
// streams over a virtual register file, flag set, and segmented memory.
package emu

import (
	"fmt"

	"golang.org/x/exp/maps"

	"github.com/sigil-dev/ilsim/arch"
	"github.com/sigil-dev/ilsim/il"
)

// RegFile is the virtual register file. Architectural values are stored only
// under their full-width register name; sub-registers have no independent
// storage and are always derived from, or written through to, the full-width
// value, so reads and writes through any alias stay consistent. Temporary
// registers live in a separate untyped store.
type RegFile struct {
	arch  *arch.Arch
	vals  map[string]uint64
	temps map[int]uint64
}

// NewRegFile creates an empty register file for the given architecture.
func NewRegFile(a *arch.Arch) *RegFile {
	return &RegFile{
		arch:  a,
		vals:  make(map[string]uint64),
		temps: make(map[int]uint64),
	}
}

// widthMask returns the all-ones mask for a register or transfer width in
// bytes. Widths of 8 bytes and above saturate to a full 64-bit mask.
func widthMask(size int) uint64 {
	if size >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (size * 8)) - 1
}

// signExtend interprets the low bits of value as a bits-wide signed quantity
// and returns its 64-bit two's complement representation:
// (v & (half-1)) - (v & half), with half = 1 << (bits-1).
func signExtend(value uint64, bits int) uint64 {
	if bits <= 0 || bits >= 64 {
		return value
	}
	half := uint64(1) << (bits - 1)
	return (value & (half - 1)) - (value & half)
}

// root resolves a register's full-width parent chain to the self-parented
// register that owns the family's storage. The chain is validated to
// terminate at construction.
func (r *RegFile) root(info arch.RegisterInfo) arch.RegisterInfo {
	for info.Name != info.FullWidth {
		info, _ = r.arch.Register(info.FullWidth)
	}
	return info
}

// Set writes a register. Temporaries are stored verbatim. For architectural
// registers the value is masked to the register's width and applied to the
// full-width parent according to the register's extension policy. A partial
// write (NoExtend, or any non-zero offset) requires the parent to already
// hold a value and fails with ErrUndefined otherwise. The stored full-width
// value is returned.
func (r *RegFile) Set(reg il.Register, value uint64) (uint64, error) {
	if reg.IsTemp {
		r.temps[reg.Index] = value
		return value, nil
	}

	info, ok := r.arch.Register(reg.Name)
	if !ok {
		return 0, fmt.Errorf("%w: unknown register %q", ErrUndefined, reg.Name)
	}
	value &= widthMask(info.Size)

	if info.Name == info.FullWidth {
		r.vals[info.Name] = value
		return value, nil
	}

	full := r.root(info)
	fullValue, defined := r.vals[full.Name]

	if !defined && (info.Extend == arch.NoExtend || info.Offset != 0) {
		return 0, fmt.Errorf("%w: register %s", ErrUndefined, info.FullWidth)
	}

	switch info.Extend {
	case arch.ZeroExtendToFullWidth:
		fullValue = value
	case arch.SignExtendToFullWidth:
		fullValue = signExtend(value, info.Size*8) & widthMask(full.Size)
	case arch.NoExtend:
		regBits := widthMask(info.Size) << (info.Offset * 8)
		fullValue = (fullValue &^ regBits) | value<<(info.Offset*8)
	}

	r.vals[full.Name] = fullValue
	return fullValue, nil
}

// Get reads a register. Temporaries return their stored value. Architectural
// registers are bit slices of their full-width parent's value. Reading a
// register whose parent was never written fails with ErrUndefined.
func (r *RegFile) Get(reg il.Register) (uint64, error) {
	if reg.IsTemp {
		value, ok := r.temps[reg.Index]
		if !ok {
			return 0, fmt.Errorf("%w: temp register %d", ErrUndefined, reg.Index)
		}
		return value, nil
	}

	info, ok := r.arch.Register(reg.Name)
	if !ok {
		return 0, fmt.Errorf("%w: unknown register %q", ErrUndefined, reg.Name)
	}

	fullValue, defined := r.vals[r.root(info).Name]
	if !defined {
		return 0, fmt.Errorf("%w: register %s", ErrUndefined, reg.Name)
	}

	if info.Name == info.FullWidth {
		return fullValue & widthMask(info.Size), nil
	}

	regBits := widthMask(info.Size) << (info.Offset * 8)
	return (fullValue & regBits) >> (info.Offset * 8), nil
}

// Values returns a snapshot of all full-width register values currently set.
func (r *RegFile) Values() map[string]uint64 {
	return maps.Clone(r.vals)
}
