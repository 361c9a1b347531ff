package emu_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sigil-dev/ilsim/emu"
)

var _ = Describe("Memory", func() {
	var memory *emu.Memory

	BeforeEach(func() {
		memory = emu.NewMemory(8, binary.LittleEndian)
	})

	Describe("Map", func() {
		It("should round-trip a value through a mapped region", func() {
			_, err := memory.Map(0x1000, 0x1000, emu.ProtRead|emu.ProtWrite, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(memory.Write(0x1000, 0xBADF00D, 4)).To(Succeed())
			Expect(memory.Read(0x1000, 4)).To(Equal(uint64(0xBADF00D)))
		})

		It("should zero-fill new segments", func() {
			_, err := memory.Map(0x1000, 0x10, emu.ProtRead, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(memory.Read(0x1008, 8)).To(Equal(uint64(0)))
		})

		It("should pre-fill a segment with initial data", func() {
			_, err := memory.Map(0x2000, 0x10, emu.ProtRead, []byte{0x0D, 0xF0, 0xAD, 0x0B})
			Expect(err).NotTo(HaveOccurred())

			Expect(memory.Read(0x2000, 4)).To(Equal(uint64(0x0BADF00D)))
		})

		It("should reject initial data longer than the segment", func() {
			_, err := memory.Map(0x2000, 2, emu.ProtRead, []byte{1, 2, 3})

			Expect(err).To(MatchError(emu.ErrMemoryAccess))
		})

		It("should reject overlapping segments", func() {
			_, err := memory.Map(0x1000, 0x1000, emu.ProtAll, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = memory.Map(0x1800, 0x1000, emu.ProtAll, nil)
			Expect(err).To(MatchError(emu.ErrMemoryAccess))
		})

		It("should reject zero-length segments", func() {
			_, err := memory.Map(0x1000, 0, emu.ProtAll, nil)

			Expect(err).To(MatchError(emu.ErrMemoryAccess))
		})

		It("should reject segments leaving the address space", func() {
			small := emu.NewMemory(2, binary.LittleEndian)

			_, err := small.Map(0xFF00, 0x200, emu.ProtAll, nil)
			Expect(err).To(MatchError(emu.ErrMemoryAccess))
		})
	})

	Describe("MapAnywhere", func() {
		It("should place the first segment at address zero", func() {
			base, err := memory.MapAnywhere(0x1000, 1, emu.ProtAll, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(base).To(Equal(uint64(0)))
		})

		It("should skip over existing segments", func() {
			_, err := memory.Map(0x0, 0x1000, emu.ProtAll, nil)
			Expect(err).NotTo(HaveOccurred())

			base, err := memory.MapAnywhere(0x1000, 1, emu.ProtAll, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(base).To(Equal(uint64(0x1000)))
		})

		It("should respect the alignment constraint", func() {
			_, err := memory.Map(0x0, 0xE00, emu.ProtAll, nil)
			Expect(err).NotTo(HaveOccurred())

			base, err := memory.MapAnywhere(0x1000, 0x1000, emu.ProtAll, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(base).To(Equal(uint64(0x1000)))
		})

		It("should fill a gap between segments", func() {
			_, err := memory.Map(0x0, 0x1000, emu.ProtAll, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = memory.Map(0x2000, 0x1000, emu.ProtAll, nil)
			Expect(err).NotTo(HaveOccurred())

			base, err := memory.MapAnywhere(0x800, 1, emu.ProtAll, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(base).To(Equal(uint64(0x1000)))
		})

		It("should fail when the address space is exhausted", func() {
			small := emu.NewMemory(2, binary.LittleEndian)
			_, err := small.Map(0x0, 0x10000, emu.ProtAll, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = small.MapAnywhere(0x10, 1, emu.ProtAll, nil)
			Expect(err).To(MatchError(emu.ErrMemoryAccess))
		})
	})

	Describe("point transfers", func() {
		BeforeEach(func() {
			_, err := memory.Map(0x1000, 0x1000, emu.ProtRead|emu.ProtWrite, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should fail to read an unmapped address", func() {
			_, err := memory.Read(0x9000, 4)

			Expect(err).To(MatchError(emu.ErrMemoryAccess))
		})

		It("should fail to write an unmapped address", func() {
			err := memory.Write(0x9000, 1, 4)

			Expect(err).To(MatchError(emu.ErrMemoryAccess))
		})

		It("should fail on a read crossing the segment boundary", func() {
			_, err := memory.Read(0x1FFC, 8)

			Expect(err).To(MatchError(emu.ErrMemoryAccess))
		})

		It("should reject transfer widths outside {1,2,4,8}", func() {
			_, err := memory.Read(0x1000, 3)
			Expect(err).To(MatchError(emu.ErrInvalidWidth))

			err = memory.Write(0x1000, 1, 16)
			Expect(err).To(MatchError(emu.ErrInvalidWidth))
		})

		It("should honor every supported width", func() {
			value := uint64(0x1122334455667788)
			for _, width := range []int{1, 2, 4} {
				mask := (uint64(1) << (width * 8)) - 1
				Expect(memory.Write(0x1000, value, width)).To(Succeed())
				Expect(memory.Read(0x1000, width)).To(Equal(value & mask))
			}
			Expect(memory.Write(0x1000, value, 8)).To(Succeed())
			Expect(memory.Read(0x1000, 8)).To(Equal(value))
		})

		It("should store multi-byte values little-endian", func() {
			Expect(memory.Write(0x1000, 0x0A0B0C0D, 4)).To(Succeed())

			Expect(memory.ReadBytes(0x1000, 4)).To(Equal([]byte{0x0D, 0x0C, 0x0B, 0x0A}))
		})
	})

	Describe("byte order", func() {
		It("should store multi-byte values big-endian when declared", func() {
			big := emu.NewMemory(8, binary.BigEndian)
			_, err := big.Map(0x1000, 0x100, emu.ProtAll, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(big.Write(0x1000, 0x0A0B0C0D, 4)).To(Succeed())
			Expect(big.ReadBytes(0x1000, 4)).To(Equal([]byte{0x0A, 0x0B, 0x0C, 0x0D}))
		})
	})

	Describe("raw byte transfers", func() {
		It("should round-trip raw bytes within a segment", func() {
			_, err := memory.Map(0x1000, 0x100, emu.ProtAll, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(memory.WriteBytes(0x1010, []byte{1, 2, 3, 4, 5})).To(Succeed())
			Expect(memory.ReadBytes(0x1010, 5)).To(Equal([]byte{1, 2, 3, 4, 5}))
		})

		It("should fail on a raw write crossing the segment boundary", func() {
			_, err := memory.Map(0x1000, 0x10, emu.ProtAll, nil)
			Expect(err).NotTo(HaveOccurred())

			err = memory.WriteBytes(0x100E, []byte{1, 2, 3})
			Expect(err).To(MatchError(emu.ErrMemoryAccess))
		})
	})

	Describe("Contains", func() {
		It("should report covered and uncovered addresses", func() {
			_, err := memory.Map(0x1000, 0x1000, emu.ProtAll, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(memory.Contains(0x1000)).To(BeTrue())
			Expect(memory.Contains(0x1FFF)).To(BeTrue())
			Expect(memory.Contains(0x2000)).To(BeFalse())
			Expect(memory.Contains(0xFFF)).To(BeFalse())
		})
	})

	Describe("Unmap", func() {
		It("should signal that unmapping is not implemented", func() {
			_, err := memory.Map(0x1000, 0x1000, emu.ProtAll, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(memory.Unmap(0x1000, 0x1000)).To(MatchError(emu.ErrUnimplemented))
		})
	})

	Describe("Segments", func() {
		It("should snapshot segments ordered by base address", func() {
			_, err := memory.Map(0x2000, 0x100, emu.ProtRead, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = memory.Map(0x1000, 0x100, emu.ProtAll, nil)
			Expect(err).NotTo(HaveOccurred())

			segs := memory.Segments()
			Expect(segs).To(HaveLen(2))
			Expect(segs[0].Start).To(Equal(uint64(0x1000)))
			Expect(segs[0].Prot).To(Equal(emu.ProtAll))
			Expect(segs[1].Start).To(Equal(uint64(0x2000)))
		})
	})
})
