package emu

import (
	"errors"
	"fmt"

	"github.com/sigil-dev/ilsim/arch"
	"github.com/sigil-dev/ilsim/il"
)

// State is the execution state of an Emulator.
type State int

const (
	// StateReady means no instruction has been executed yet.
	StateReady State = iota

	// StateStepping means at least one instruction has executed and the
	// stream has neither halted nor faulted.
	StateStepping

	// StateHalted means a Return was evaluated or the instruction index
	// ran cleanly past the end of the active stream. Terminal.
	StateHalted

	// StateFaulted means an operation failed during evaluation. Terminal.
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateStepping:
		return "stepping"
	case StateHalted:
		return "halted"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Resolver supplies the instruction stream for a call target that has no
// registered hook, creating or analyzing the function first if it is not
// yet known. A resolution failure propagates as a fault.
type Resolver func(addr uint64) (*il.Function, error)

// SegmentDescriptor describes one region of an initial memory snapshot.
type SegmentDescriptor struct {
	Start  uint64
	Length uint64
	Prot   Prot
	Data   []byte
}

// StepResult reports the outcome of executing a single instruction.
type StepResult struct {
	// Halted is true once the stream has terminated cleanly.
	Halted bool

	// Err is set if the instruction faulted.
	Err error
}

// Emulator interprets one IL function at a time over a virtual register
// file, flag store, and segmented memory image. It is single-threaded and
// step-driven: the caller pulls one instruction at a time and fully controls
// pacing. A call to a resolvable address swaps the active stream in place;
// there is no implicit call stack, so return addresses must be pushed and
// popped through memory and the stack pointer like any other data.
type Emulator struct {
	arch     *arch.Arch
	fn       *il.Function
	regFile  *RegFile
	memory   *Memory
	flags    *FlagStore
	hooks    *hookRegistry
	resolver Resolver

	instrIndex int
	state      State
	faultErr   error

	image []SegmentDescriptor
}

// Option configures an Emulator at construction.
type Option func(*Emulator)

// WithResolver sets the callback used to resolve call targets that have no
// registered hook.
func WithResolver(r Resolver) Option {
	return func(e *Emulator) {
		e.resolver = r
	}
}

// WithMemoryImage pre-populates the memory image from segment descriptors
// before execution starts.
func WithMemoryImage(segments []SegmentDescriptor) Option {
	return func(e *Emulator) {
		e.image = append(e.image, segments...)
	}
}

// New creates an emulator for the given architecture and instruction
// stream. It fails if an initial memory image cannot be mapped.
func New(a *arch.Arch, fn *il.Function, opts ...Option) (*Emulator, error) {
	e := &Emulator{
		arch:    a,
		fn:      fn,
		regFile: NewRegFile(a),
		memory:  NewMemory(a.AddressSize, a.ByteOrder),
		flags:   NewFlagStore(),
		hooks:   newHookRegistry(),
		state:   StateReady,
	}

	for _, opt := range opts {
		opt(e)
	}

	for _, seg := range e.image {
		if _, err := e.memory.Map(seg.Start, seg.Length, seg.Prot, seg.Data); err != nil {
			return nil, fmt.Errorf("memory image: %w", err)
		}
	}
	e.image = nil

	return e, nil
}

// Arch returns the architecture description.
func (e *Emulator) Arch() *arch.Arch {
	return e.arch
}

// Function returns the active instruction stream.
func (e *Emulator) Function() *il.Function {
	return e.fn
}

// InstrIndex returns the current instruction index into the active stream.
func (e *Emulator) InstrIndex() int {
	return e.instrIndex
}

// State returns the current execution state.
func (e *Emulator) State() State {
	return e.state
}

// SetRegister writes a register and returns the stored full-width value.
func (e *Emulator) SetRegister(reg il.Register, value uint64) (uint64, error) {
	return e.regFile.Set(reg, value)
}

// GetRegister reads a register.
func (e *Emulator) GetRegister(reg il.Register) (uint64, error) {
	return e.regFile.Get(reg)
}

// Registers returns a snapshot of all full-width register values set.
func (e *Emulator) Registers() map[string]uint64 {
	return e.regFile.Values()
}

// SetFlag stores and returns a flag value.
func (e *Emulator) SetFlag(flag string, value bool) bool {
	return e.flags.Set(flag, value)
}

// GetFlag reads a flag; unset flags read as false.
func (e *Emulator) GetFlag(flag string) bool {
	return e.flags.Get(flag)
}

// MapMemory creates a segment at an explicit base address.
func (e *Emulator) MapMemory(start, length uint64, prot Prot, data []byte) (uint64, error) {
	return e.memory.Map(start, length, prot, data)
}

// MapMemoryAnywhere creates a segment at the first free aligned region of
// the requested size and returns its base address.
func (e *Emulator) MapMemoryAnywhere(length, align uint64, prot Prot, data []byte) (uint64, error) {
	return e.memory.MapAnywhere(length, align, prot, data)
}

// UnmapMemory is declared but not implemented.
func (e *Emulator) UnmapMemory(start, length uint64) error {
	return e.memory.Unmap(start, length)
}

// ReadMemory reads length bytes at addr as an unsigned integer.
func (e *Emulator) ReadMemory(addr uint64, length int) (uint64, error) {
	return e.memory.Read(addr, length)
}

// WriteMemory encodes value into length bytes and writes them at addr.
func (e *Emulator) WriteMemory(addr uint64, value uint64, length int) error {
	return e.memory.Write(addr, value, length)
}

// WriteMemoryBytes writes raw bytes at addr.
func (e *Emulator) WriteMemoryBytes(addr uint64, data []byte) error {
	return e.memory.WriteBytes(addr, data)
}

// MappedMemory returns a snapshot of all mapped segments.
func (e *Emulator) MappedMemory() []Segment {
	return e.memory.Segments()
}

// Memory returns the underlying memory image.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// Step executes exactly one instruction: it fetches the instruction at the
// current index, advances the index, and evaluates the instruction, which
// may itself redirect the index (Goto, If, Call). Errors transition the
// emulator to StateFaulted; evaluating Return, or the index running cleanly
// past the end of the stream, transitions it to StateHalted. Both states
// are terminal.
func (e *Emulator) Step() StepResult {
	switch e.state {
	case StateHalted:
		return StepResult{Halted: true}
	case StateFaulted:
		return StepResult{Err: e.faultErr}
	}
	e.state = StateStepping

	if e.instrIndex == e.fn.Len() {
		e.state = StateHalted
		return StepResult{Halted: true}
	}
	if e.instrIndex < 0 || e.instrIndex > e.fn.Len() {
		return e.fault(fmt.Errorf("%w: instruction index %d out of range", ErrMemoryAccess, e.instrIndex))
	}

	instr := e.fn.At(e.instrIndex)
	e.instrIndex++

	if _, err := e.eval(instr); err != nil {
		if errors.Is(err, errHalt) {
			e.state = StateHalted
			return StepResult{Halted: true}
		}
		return e.fault(err)
	}
	return StepResult{}
}

// ExecuteInstruction is an alias for Step.
func (e *Emulator) ExecuteInstruction() StepResult {
	return e.Step()
}

// Run steps until the emulator halts or faults, returning the fault error
// if any.
func (e *Emulator) Run() error {
	for {
		result := e.Step()
		if result.Err != nil {
			return result.Err
		}
		if result.Halted {
			return nil
		}
	}
}

func (e *Emulator) fault(err error) StepResult {
	e.state = StateFaulted
	e.faultErr = err
	return StepResult{Err: err}
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// eval recursively evaluates an IL expression, dispatching on its kind.
// Sub-expressions are evaluated left to right where order is observable.
// Control-flow nodes mutate the instruction index directly; side effects
// already performed are not rolled back when a later step of the same node
// fails.
func (e *Emulator) eval(expr *il.Expr) (uint64, error) {
	switch expr.Op {
	case il.OpConst, il.OpConstPtr:
		return expr.Constant, nil

	case il.OpReadReg:
		return e.regFile.Get(expr.Reg)

	case il.OpSetReg:
		value, err := e.eval(expr.Src)
		if err != nil {
			return 0, err
		}
		if _, err := e.regFile.Set(expr.Reg, value); err != nil {
			return 0, err
		}
		return 1, nil

	case il.OpLoad:
		addr, err := e.eval(expr.Src)
		if err != nil {
			return 0, err
		}
		return e.memory.Read(addr, expr.Size)

	case il.OpStore:
		addr, err := e.eval(expr.Dst)
		if err != nil {
			return 0, err
		}
		value, err := e.eval(expr.Src)
		if err != nil {
			return 0, err
		}
		if err := e.memory.Write(addr, value, expr.Size); err != nil {
			return 0, err
		}
		return 1, nil

	case il.OpPush:
		return e.evalPush(expr)

	case il.OpPop:
		return e.evalPop(expr)

	case il.OpGoto:
		e.instrIndex = expr.Target
		return uint64(expr.Target), nil

	case il.OpIf:
		cond, err := e.eval(expr.Cond)
		if err != nil {
			return 0, err
		}
		if cond != 0 {
			e.instrIndex = expr.True
		} else {
			e.instrIndex = expr.False
		}
		return boolToUint(cond != 0), nil

	case il.OpCmpE, il.OpCmpNE, il.OpCmpSLT, il.OpCmpUGT:
		return e.evalCompare(expr)

	case il.OpAdd, il.OpSub, il.OpAnd, il.OpOr, il.OpXor, il.OpLsl, il.OpLsr:
		return e.evalArith(expr)

	case il.OpSignExtend:
		value, err := e.eval(expr.Src)
		if err != nil {
			return 0, err
		}
		return signExtend(value, expr.Src.Size*8) & widthMask(expr.Size), nil

	case il.OpZeroExtend:
		// Width is implicit in storage; the value passes through.
		return e.eval(expr.Src)

	case il.OpSetFlag:
		value, err := e.eval(expr.Src)
		if err != nil {
			return 0, err
		}
		return boolToUint(e.flags.Set(expr.Flag, value != 0)), nil

	case il.OpReadFlag:
		return boolToUint(e.flags.Get(expr.Flag)), nil

	case il.OpCall:
		return e.evalCall(expr)

	case il.OpRet:
		// No return-address following: the caller models call/return
		// through the stack pointer and memory explicitly.
		return 0, errHalt

	default:
		return 0, fmt.Errorf("%w: unsupported IL node %v", ErrInvalidWidth, expr.Op)
	}
}

// evalPush writes the value at the current stack pointer, then decrements
// the stack pointer by the node width. The write happens at the pre-adjust
// address; reproducing this write-then-adjust order is what fixes the stack
// growth direction.
func (e *Emulator) evalPush(expr *il.Expr) (uint64, error) {
	sp := il.Reg(e.arch.StackPointer)

	value, err := e.eval(expr.Src)
	if err != nil {
		return 0, err
	}

	spValue, err := e.regFile.Get(sp)
	if err != nil {
		return 0, err
	}
	if err := e.memory.Write(spValue, value, expr.Size); err != nil {
		return 0, err
	}

	spValue -= uint64(expr.Size)
	return e.regFile.Set(sp, spValue)
}

// evalPop increments the stack pointer by the node width before reading,
// reads the value at the new stack pointer address, and returns it.
func (e *Emulator) evalPop(expr *il.Expr) (uint64, error) {
	sp := il.Reg(e.arch.StackPointer)

	spValue, err := e.regFile.Get(sp)
	if err != nil {
		return 0, err
	}
	spValue += uint64(expr.Size)

	value, err := e.memory.Read(spValue, expr.Size)
	if err != nil {
		return 0, err
	}
	if _, err := e.regFile.Set(sp, spValue); err != nil {
		return 0, err
	}
	return value, nil
}

func (e *Emulator) evalCompare(expr *il.Expr) (uint64, error) {
	left, err := e.eval(expr.Left)
	if err != nil {
		return 0, err
	}
	right, err := e.eval(expr.Right)
	if err != nil {
		return 0, err
	}

	switch expr.Op {
	case il.OpCmpE:
		return boolToUint(left == right), nil
	case il.OpCmpNE:
		return boolToUint(left != right), nil
	case il.OpCmpSLT:
		bits := expr.Size * 8
		return boolToUint(int64(signExtend(left, bits)) < int64(signExtend(right, bits))), nil
	default: // il.OpCmpUGT
		return boolToUint(left > right), nil
	}
}

// evalArith combines the evaluated operands and masks the result to the
// node width. Masking applies uniformly to Add, Sub, And, Or, Xor and Lsl;
// Lsr is unmasked since a right shift cannot widen its operand.
func (e *Emulator) evalArith(expr *il.Expr) (uint64, error) {
	left, err := e.eval(expr.Left)
	if err != nil {
		return 0, err
	}
	right, err := e.eval(expr.Right)
	if err != nil {
		return 0, err
	}

	mask := widthMask(expr.Size)
	switch expr.Op {
	case il.OpAdd:
		return (left + right) & mask, nil
	case il.OpSub:
		return (left - right) & mask, nil
	case il.OpAnd:
		return (left & right) & mask, nil
	case il.OpOr:
		return (left | right) & mask, nil
	case il.OpXor:
		return (left ^ right) & mask, nil
	case il.OpLsl:
		if right >= 64 {
			return 0, nil
		}
		return (left << right) & mask, nil
	default: // il.OpLsr
		if right >= 64 {
			return 0, nil
		}
		return left >> right, nil
	}
}

// evalCall evaluates the target address and either invokes a registered
// hook with the emulator, or asks the resolver for the callee's instruction
// stream and switches to it, resetting the instruction index to 0.
func (e *Emulator) evalCall(expr *il.Expr) (uint64, error) {
	target, err := e.eval(expr.Dst)
	if err != nil {
		return 0, err
	}

	if hook, ok := e.hooks.fns[target]; ok {
		hook(e)
		return 1, nil
	}

	if e.resolver == nil {
		return 0, fmt.Errorf("%w: %#x (no resolver)", ErrUnresolvedCall, target)
	}
	fn, err := e.resolver(target)
	if err != nil {
		return 0, fmt.Errorf("%w: %#x: %w", ErrUnresolvedCall, target, err)
	}

	e.fn = fn
	e.instrIndex = 0
	return 1, nil
}
