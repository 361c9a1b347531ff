package emu

import (
	"cmp"
	"encoding/binary"
	"fmt"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// Prot is a set of segment permission flags. Executability is informational
// only; the evaluator does not fetch machine code from memory.
type Prot int

const (
	ProtNone Prot = 0
	ProtRead Prot = 1 << (iota - 1)
	ProtWrite
	ProtExec

	ProtAll = ProtRead | ProtWrite | ProtExec
)

func (p Prot) String() string {
	flags := []byte("---")
	if p&ProtRead != 0 {
		flags[0] = 'r'
	}
	if p&ProtWrite != 0 {
		flags[1] = 'w'
	}
	if p&ProtExec != 0 {
		flags[2] = 'x'
	}
	return string(flags)
}

// Segment is one contiguous mapped memory region with its own permission
// flags and backing bytes. Segments never overlap.
type Segment struct {
	Start  uint64
	Length uint64
	Prot   Prot

	data []byte
}

// last returns the highest address the segment covers.
func (s *Segment) last() uint64 {
	return s.Start + s.Length - 1
}

func (s *Segment) contains(addr uint64) bool {
	return addr >= s.Start && addr-s.Start < s.Length
}

// Memory is a sparse collection of independently mapped segments over an
// address space bounded by the architecture's address size. All multi-byte
// transfers use the architecture's byte order and must lie entirely within
// a single segment.
type Memory struct {
	addressSize int
	order       binary.ByteOrder
	segments    []*Segment
}

// NewMemory creates an empty memory image for an address space of
// 2^(addressSize*8) bytes, with the given byte order for multi-byte
// transfers.
func NewMemory(addressSize int, order binary.ByteOrder) *Memory {
	return &Memory{addressSize: addressSize, order: order}
}

// maxAddress returns the highest valid address.
func (m *Memory) maxAddress() uint64 {
	if m.addressSize >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (m.addressSize * 8)) - 1
}

// alignUp rounds a up to the next multiple of b. b must be a power of two.
func alignUp[I constraints.Integer](a, b I) I {
	return (a + b - 1) &^ (b - 1)
}

// Map creates a segment at an explicit base address. The segment is
// zero-filled, then pre-filled with data if given. Mapping fails if the
// region leaves the address space, overlaps an existing segment, or the
// initial data is longer than the segment.
func (m *Memory) Map(start, length uint64, prot Prot, data []byte) (uint64, error) {
	if length == 0 {
		return 0, fmt.Errorf("%w: zero-length mapping at %#x", ErrMemoryAccess, start)
	}
	if start > m.maxAddress() || length-1 > m.maxAddress()-start {
		return 0, fmt.Errorf("%w: mapping [%#x, +%#x) exceeds address space", ErrMemoryAccess, start, length)
	}
	if uint64(len(data)) > length {
		return 0, fmt.Errorf("%w: initial data (%d bytes) larger than segment (%d bytes)", ErrMemoryAccess, len(data), length)
	}

	end := start + length - 1
	for _, s := range m.segments {
		if start <= s.last() && s.Start <= end {
			return 0, fmt.Errorf("%w: mapping [%#x, +%#x) overlaps segment at %#x", ErrMemoryAccess, start, length, s.Start)
		}
	}

	seg := &Segment{Start: start, Length: length, Prot: prot, data: make([]byte, length)}
	copy(seg.data, data)

	m.segments = append(m.segments, seg)
	slices.SortFunc(m.segments, func(a, b *Segment) int {
		return cmp.Compare(a.Start, b.Start)
	})
	return start, nil
}

// MapAnywhere creates a segment at the first free region of the requested
// size, scanning from address 0 and skipping existing segments. Candidate
// bases are aligned to align (power of two; 0 or 1 means unaligned). It
// fails with ErrMemoryAccess when the address space is exhausted.
func (m *Memory) MapAnywhere(length, align uint64, prot Prot, data []byte) (uint64, error) {
	if length == 0 {
		return 0, fmt.Errorf("%w: zero-length mapping", ErrMemoryAccess)
	}
	if align == 0 {
		align = 1
	}

	max := m.maxAddress()
	addr := uint64(0)
	for {
		if addr > max || length-1 > max-addr {
			return 0, fmt.Errorf("%w: address space exhausted looking for %#x bytes", ErrMemoryAccess, length)
		}
		end := addr + length - 1

		var blocked *Segment
		for _, s := range m.segments {
			if addr <= s.last() && s.Start <= end {
				blocked = s
				break
			}
		}
		if blocked == nil {
			return m.Map(addr, length, prot, data)
		}
		if blocked.last() == max {
			return 0, fmt.Errorf("%w: address space exhausted looking for %#x bytes", ErrMemoryAccess, length)
		}

		next := alignUp(blocked.last()+1, align)
		if next <= addr { // alignment overflowed the address space
			return 0, fmt.Errorf("%w: address space exhausted looking for %#x bytes", ErrMemoryAccess, length)
		}
		addr = next
	}
}

// Unmap is declared but not implemented; mapped regions cannot be freed.
func (m *Memory) Unmap(start, length uint64) error {
	return fmt.Errorf("%w: unmapping memory", ErrUnimplemented)
}

// Contains reports whether some segment covers the address.
func (m *Memory) Contains(addr uint64) bool {
	return m.segmentAt(addr) != nil
}

func (m *Memory) segmentAt(addr uint64) *Segment {
	for _, s := range m.segments {
		if s.contains(addr) {
			return s
		}
	}
	return nil
}

// checkRange validates a point transfer: the width must be 1, 2, 4 or 8
// bytes and the whole range must lie within one segment.
func (m *Memory) checkRange(addr uint64, length int) (*Segment, error) {
	switch length {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("%w: transfer width %d not in {1,2,4,8}", ErrInvalidWidth, length)
	}

	seg := m.segmentAt(addr)
	if seg == nil {
		return nil, fmt.Errorf("%w: address %#x is not mapped", ErrMemoryAccess, addr)
	}
	if addr-seg.Start+uint64(length) > seg.Length {
		return nil, fmt.Errorf("%w: access [%#x, +%d) crosses segment boundary", ErrMemoryAccess, addr, length)
	}
	return seg, nil
}

// Read reads length bytes at addr as an unsigned integer in the memory's
// byte order. length must be 1, 2, 4 or 8.
func (m *Memory) Read(addr uint64, length int) (uint64, error) {
	seg, err := m.checkRange(addr, length)
	if err != nil {
		return 0, err
	}

	b := seg.data[addr-seg.Start:]
	switch length {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(m.order.Uint16(b)), nil
	case 4:
		return uint64(m.order.Uint32(b)), nil
	default:
		return m.order.Uint64(b), nil
	}
}

// Write encodes value into length bytes in the memory's byte order and
// writes them at addr. length must be 1, 2, 4 or 8.
func (m *Memory) Write(addr uint64, value uint64, length int) error {
	seg, err := m.checkRange(addr, length)
	if err != nil {
		return err
	}

	b := seg.data[addr-seg.Start:]
	switch length {
	case 1:
		b[0] = byte(value)
	case 2:
		m.order.PutUint16(b, uint16(value))
	case 4:
		m.order.PutUint32(b, uint32(value))
	default:
		m.order.PutUint64(b, value)
	}
	return nil
}

// ReadBytes copies length raw bytes starting at addr. The range must lie
// within a single segment.
func (m *Memory) ReadBytes(addr, length uint64) ([]byte, error) {
	seg := m.segmentAt(addr)
	if seg == nil {
		return nil, fmt.Errorf("%w: address %#x is not mapped", ErrMemoryAccess, addr)
	}
	if addr-seg.Start+length > seg.Length {
		return nil, fmt.Errorf("%w: read [%#x, +%d) crosses segment boundary", ErrMemoryAccess, addr, length)
	}
	out := make([]byte, length)
	copy(out, seg.data[addr-seg.Start:])
	return out, nil
}

// WriteBytes writes raw bytes starting at addr. The range must lie within a
// single segment.
func (m *Memory) WriteBytes(addr uint64, data []byte) error {
	seg := m.segmentAt(addr)
	if seg == nil {
		return fmt.Errorf("%w: address %#x is not mapped", ErrMemoryAccess, addr)
	}
	if addr-seg.Start+uint64(len(data)) > seg.Length {
		return fmt.Errorf("%w: write [%#x, +%d) crosses segment boundary", ErrMemoryAccess, addr, len(data))
	}
	copy(seg.data[addr-seg.Start:], data)
	return nil
}

// Segments returns a snapshot of all mapped segments ordered by base
// address.
func (m *Memory) Segments() []Segment {
	out := make([]Segment, 0, len(m.segments))
	for _, s := range m.segments {
		out = append(out, Segment{Start: s.Start, Length: s.Length, Prot: s.Prot})
	}
	return out
}
