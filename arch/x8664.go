package arch

import "encoding/binary"

// X8664 returns the x86-64 general-purpose register layout: the 64-bit
// registers with their 32/16/8-bit aliases. Writes to 32-bit aliases
// zero-extend into the full register; 16-bit and 8-bit writes leave the
// remaining bits untouched, matching hardware behavior.
func X8664() *Arch {
	var regs []RegisterInfo

	// Legacy families with high-byte aliases (rax -> eax/ax/al/ah).
	legacy := [][5]string{
		{"rax", "eax", "ax", "al", "ah"},
		{"rbx", "ebx", "bx", "bl", "bh"},
		{"rcx", "ecx", "cx", "cl", "ch"},
		{"rdx", "edx", "dx", "dl", "dh"},
	}
	for _, f := range legacy {
		regs = append(regs,
			RegisterInfo{Name: f[0], Size: 8, FullWidth: f[0]},
			RegisterInfo{Name: f[1], Size: 4, FullWidth: f[0], Extend: ZeroExtendToFullWidth},
			RegisterInfo{Name: f[2], Size: 2, FullWidth: f[0]},
			RegisterInfo{Name: f[3], Size: 1, FullWidth: f[0]},
			RegisterInfo{Name: f[4], Size: 1, Offset: 1, FullWidth: f[0]},
		)
	}

	// Pointer/index families (rsi -> esi/si/sil).
	pointer := [][4]string{
		{"rsi", "esi", "si", "sil"},
		{"rdi", "edi", "di", "dil"},
		{"rbp", "ebp", "bp", "bpl"},
		{"rsp", "esp", "sp", "spl"},
	}
	for _, f := range pointer {
		regs = append(regs,
			RegisterInfo{Name: f[0], Size: 8, FullWidth: f[0]},
			RegisterInfo{Name: f[1], Size: 4, FullWidth: f[0], Extend: ZeroExtendToFullWidth},
			RegisterInfo{Name: f[2], Size: 2, FullWidth: f[0]},
			RegisterInfo{Name: f[3], Size: 1, FullWidth: f[0]},
		)
	}

	// Extended families (r8 -> r8d/r8w/r8b).
	extended := [][4]string{
		{"r8", "r8d", "r8w", "r8b"},
		{"r9", "r9d", "r9w", "r9b"},
		{"r10", "r10d", "r10w", "r10b"},
		{"r11", "r11d", "r11w", "r11b"},
		{"r12", "r12d", "r12w", "r12b"},
		{"r13", "r13d", "r13w", "r13b"},
		{"r14", "r14d", "r14w", "r14b"},
		{"r15", "r15d", "r15w", "r15b"},
	}
	for _, f := range extended {
		regs = append(regs,
			RegisterInfo{Name: f[0], Size: 8, FullWidth: f[0]},
			RegisterInfo{Name: f[1], Size: 4, FullWidth: f[0], Extend: ZeroExtendToFullWidth},
			RegisterInfo{Name: f[2], Size: 2, FullWidth: f[0]},
			RegisterInfo{Name: f[3], Size: 1, FullWidth: f[0]},
		)
	}

	a, err := New("x86_64", 8, binary.LittleEndian, "rsp", regs)
	if err != nil {
		panic(err) // the built-in table is statically correct
	}
	return a
}
