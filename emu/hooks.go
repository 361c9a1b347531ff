package emu

import (
	"golang.org/x/exp/maps"

	"github.com/sigil-dev/ilsim/il"
)

// FunctionHook stands in for the real effects of a call target. When a call
// evaluates to an address with a registered hook, the hook is invoked with
// the emulator instead of control transferring to the callee.
type FunctionHook func(e *Emulator)

// InstructionHook is a reserved extension point for intercepting individual
// IL node kinds. Registered hooks are recorded but never invoked.
type InstructionHook func(e *Emulator, expr *il.Expr)

type hookRegistry struct {
	fns   map[uint64]FunctionHook
	instr map[il.Op]InstructionHook
}

func newHookRegistry() *hookRegistry {
	return &hookRegistry{
		fns:   make(map[uint64]FunctionHook),
		instr: make(map[il.Op]InstructionHook),
	}
}

// RegisterFunctionHook installs a hook for calls to the given address,
// replacing any previous hook at that address.
func (e *Emulator) RegisterFunctionHook(addr uint64, hook FunctionHook) {
	e.hooks.fns[addr] = hook
}

// UnregisterFunctionHook removes the hook for the given address, if any.
func (e *Emulator) UnregisterFunctionHook(addr uint64) {
	delete(e.hooks.fns, addr)
}

// FunctionHooks returns a snapshot of registered function hooks by address.
func (e *Emulator) FunctionHooks() map[uint64]FunctionHook {
	return maps.Clone(e.hooks.fns)
}

// RegisterInstructionHook records a reserved instruction-level hook. The
// hook is never invoked by the current dispatcher.
func (e *Emulator) RegisterInstructionHook(op il.Op, hook InstructionHook) {
	e.hooks.instr[op] = hook
}

// UnregisterInstructionHook removes a recorded instruction-level hook.
func (e *Emulator) UnregisterInstructionHook(op il.Op) {
	delete(e.hooks.instr, op)
}
