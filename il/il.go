// Package il defines the low-level intermediate language consumed by the
// evaluator.
//
// IL instructions are expression trees produced by an external decoder. Each
// node carries an operation kind, an operand width in bytes, and kind-specific
// operands. Builder functions mirror the node kinds so instruction streams can
// be assembled by hand:
//
//	fn := il.NewFunction()
//	fn.Append(il.Push(8, il.Const(8, 0xbadf00d)))
//	fn.Append(il.SetReg(8, il.Reg("rax"), il.Pop(8)))
package il

import "strconv"

// Op identifies an IL expression kind.
type Op int

// IL expression kinds.
const (
	OpInvalid Op = iota
	OpConst
	OpConstPtr
	OpReadReg
	OpSetReg
	OpLoad
	OpStore
	OpPush
	OpPop
	OpGoto
	OpIf
	OpCmpE
	OpCmpNE
	OpCmpSLT
	OpCmpUGT
	OpAdd
	OpSub
	OpAnd
	OpOr
	OpXor
	OpLsl
	OpLsr
	OpSignExtend
	OpZeroExtend
	OpSetFlag
	OpReadFlag
	OpCall
	OpRet
)

var opNames = map[Op]string{
	OpInvalid:    "invalid",
	OpConst:      "const",
	OpConstPtr:   "const_ptr",
	OpReadReg:    "reg",
	OpSetReg:     "set_reg",
	OpLoad:       "load",
	OpStore:      "store",
	OpPush:       "push",
	OpPop:        "pop",
	OpGoto:       "goto",
	OpIf:         "if",
	OpCmpE:       "cmp_e",
	OpCmpNE:      "cmp_ne",
	OpCmpSLT:     "cmp_slt",
	OpCmpUGT:     "cmp_ugt",
	OpAdd:        "add",
	OpSub:        "sub",
	OpAnd:        "and",
	OpOr:         "or",
	OpXor:        "xor",
	OpLsl:        "lsl",
	OpLsr:        "lsr",
	OpSignExtend: "sx",
	OpZeroExtend: "zx",
	OpSetFlag:    "set_flag",
	OpReadFlag:   "flag",
	OpCall:       "call",
	OpRet:        "ret",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "unknown"
}

// Register identifies either an architectural register by name or a
// temporary register by index. Temporaries belong to the IL, not the
// architecture; they are stored verbatim with no width or aliasing logic.
type Register struct {
	// Name is the architectural register name. Empty for temporaries.
	Name string

	// Index is the temporary register index. Only meaningful when IsTemp
	// is true.
	Index int

	// IsTemp marks the register as a temporary.
	IsTemp bool
}

// Reg names an architectural register.
func Reg(name string) Register {
	return Register{Name: name}
}

// Temp identifies a temporary register by index.
func Temp(index int) Register {
	return Register{Index: index, IsTemp: true}
}

func (r Register) String() string {
	if r.IsTemp {
		return "temp" + strconv.Itoa(r.Index)
	}
	return r.Name
}

// Expr is a single IL expression node. The fields used depend on Op:
//
//   - OpConst, OpConstPtr: Constant
//   - OpReadReg: Reg
//   - OpSetReg: Reg (destination), Src (value)
//   - OpLoad: Src (address)
//   - OpStore: Dst (address), Src (value)
//   - OpPush: Src (value)
//   - OpPop: none
//   - OpGoto: Target
//   - OpIf: Cond, True, False
//   - comparisons and arithmetic: Left, Right
//   - OpSignExtend, OpZeroExtend: Src
//   - OpSetFlag: Flag, Src; OpReadFlag: Flag
//   - OpCall: Dst (target address)
//   - OpRet: none
//
// Size is the operand width in bytes and bounds all arithmetic on the node.
type Expr struct {
	Op   Op
	Size int

	Constant uint64
	Reg      Register
	Flag     string

	Dst  *Expr
	Src  *Expr
	Cond *Expr

	Left  *Expr
	Right *Expr

	Target int
	True   int
	False  int
}

// Const builds a literal constant of the given width.
func Const(size int, value uint64) *Expr {
	return &Expr{Op: OpConst, Size: size, Constant: value}
}

// ConstPtr builds a literal pointer constant of the given width.
func ConstPtr(size int, value uint64) *Expr {
	return &Expr{Op: OpConstPtr, Size: size, Constant: value}
}

// ReadReg builds a register read.
func ReadReg(size int, reg Register) *Expr {
	return &Expr{Op: OpReadReg, Size: size, Reg: reg}
}

// SetReg builds a register write of the evaluated source.
func SetReg(size int, reg Register, src *Expr) *Expr {
	return &Expr{Op: OpSetReg, Size: size, Reg: reg, Src: src}
}

// Load builds a memory read of size bytes at the evaluated address.
func Load(size int, addr *Expr) *Expr {
	return &Expr{Op: OpLoad, Size: size, Src: addr}
}

// Store builds a memory write of size bytes. The address is evaluated
// before the value.
func Store(size int, addr, value *Expr) *Expr {
	return &Expr{Op: OpStore, Size: size, Dst: addr, Src: value}
}

// Push builds a stack push of the evaluated value.
func Push(size int, value *Expr) *Expr {
	return &Expr{Op: OpPush, Size: size, Src: value}
}

// Pop builds a stack pop of size bytes.
func Pop(size int) *Expr {
	return &Expr{Op: OpPop, Size: size}
}

// Goto builds an unconditional jump to an instruction index.
func Goto(target int) *Expr {
	return &Expr{Op: OpGoto, Target: target}
}

// If builds a conditional jump: the instruction index becomes trueTarget
// when the condition evaluates non-zero, falseTarget otherwise.
func If(cond *Expr, trueTarget, falseTarget int) *Expr {
	return &Expr{Op: OpIf, Cond: cond, True: trueTarget, False: falseTarget}
}

// CmpE builds an unsigned equality comparison.
func CmpE(size int, left, right *Expr) *Expr {
	return &Expr{Op: OpCmpE, Size: size, Left: left, Right: right}
}

// CmpNE builds an unsigned inequality comparison.
func CmpNE(size int, left, right *Expr) *Expr {
	return &Expr{Op: OpCmpNE, Size: size, Left: left, Right: right}
}

// CmpSLT builds a signed less-than comparison at the node width.
func CmpSLT(size int, left, right *Expr) *Expr {
	return &Expr{Op: OpCmpSLT, Size: size, Left: left, Right: right}
}

// CmpUGT builds an unsigned greater-than comparison.
func CmpUGT(size int, left, right *Expr) *Expr {
	return &Expr{Op: OpCmpUGT, Size: size, Left: left, Right: right}
}

// Add builds an addition masked to the node width.
func Add(size int, left, right *Expr) *Expr {
	return &Expr{Op: OpAdd, Size: size, Left: left, Right: right}
}

// Sub builds a subtraction masked to the node width.
func Sub(size int, left, right *Expr) *Expr {
	return &Expr{Op: OpSub, Size: size, Left: left, Right: right}
}

// And builds a bitwise conjunction.
func And(size int, left, right *Expr) *Expr {
	return &Expr{Op: OpAnd, Size: size, Left: left, Right: right}
}

// Or builds a bitwise disjunction.
func Or(size int, left, right *Expr) *Expr {
	return &Expr{Op: OpOr, Size: size, Left: left, Right: right}
}

// Xor builds a bitwise exclusive-or.
func Xor(size int, left, right *Expr) *Expr {
	return &Expr{Op: OpXor, Size: size, Left: left, Right: right}
}

// Lsl builds a logical shift left masked to the node width.
func Lsl(size int, left, right *Expr) *Expr {
	return &Expr{Op: OpLsl, Size: size, Left: left, Right: right}
}

// Lsr builds a logical shift right.
func Lsr(size int, left, right *Expr) *Expr {
	return &Expr{Op: OpLsr, Size: size, Left: left, Right: right}
}

// SignExtend builds a sign extension of the source to the node width.
func SignExtend(size int, src *Expr) *Expr {
	return &Expr{Op: OpSignExtend, Size: size, Src: src}
}

// ZeroExtend builds a zero extension of the source to the node width.
func ZeroExtend(size int, src *Expr) *Expr {
	return &Expr{Op: OpZeroExtend, Size: size, Src: src}
}

// SetFlag builds a flag write of the evaluated source's truth value.
func SetFlag(flag string, src *Expr) *Expr {
	return &Expr{Op: OpSetFlag, Flag: flag, Src: src}
}

// ReadFlag builds a flag read.
func ReadFlag(flag string) *Expr {
	return &Expr{Op: OpReadFlag, Flag: flag}
}

// Call builds a call to the evaluated target address.
func Call(target *Expr) *Expr {
	return &Expr{Op: OpCall, Dst: target}
}

// Ret builds a return, which halts the active instruction stream.
func Ret() *Expr {
	return &Expr{Op: OpRet}
}

// Function is an ordered, indexable IL instruction stream for a single
// function, as produced by an external decoder.
type Function struct {
	instrs []*Expr
}

// NewFunction creates an empty instruction stream.
func NewFunction() *Function {
	return &Function{}
}

// Append adds an instruction and returns its index.
func (f *Function) Append(e *Expr) int {
	f.instrs = append(f.instrs, e)
	return len(f.instrs) - 1
}

// Len returns the number of instructions in the stream.
func (f *Function) Len() int {
	return len(f.instrs)
}

// At returns the instruction at the given index.
func (f *Function) At(index int) *Expr {
	return f.instrs[index]
}
