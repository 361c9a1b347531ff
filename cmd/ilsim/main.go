// Command ilsim runs a small hand-assembled IL program on the x86-64
// register layout and prints the register state before and after, as a
// smoke-test walk-through of the interpreter.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/sigil-dev/ilsim/arch"
	"github.com/sigil-dev/ilsim/emu"
	"github.com/sigil-dev/ilsim/il"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ilsim: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fn := il.NewFunction()
	e, err := emu.New(arch.X8664(), fn)
	if err != nil {
		return err
	}

	if _, err := e.SetRegister(il.Reg("rbx"), ^uint64(0)); err != nil {
		return err
	}
	if _, err := e.SetRegister(il.Reg("rsp"), 0x1800); err != nil {
		return err
	}

	fmt.Println("[+] Mapping memory at 0x1000 (size: 0x1000)...")
	if _, err := e.MapMemory(0x1000, 0x1000, emu.ProtRead|emu.ProtWrite, nil); err != nil {
		return err
	}

	fmt.Println("[+] Initial register state:")
	printRegisters(e)

	fn.Append(il.Push(8, il.Const(8, 0xbadf00d)))
	fn.Append(il.Push(8, il.Const(8, 0x1000)))
	fn.Append(il.SetReg(8, il.Reg("rax"), il.Pop(8)))
	fn.Append(il.SetReg(8, il.Reg("rbx"), il.Load(8, il.ReadReg(8, il.Reg("rax")))))

	fmt.Println("[+] Executing instructions...")
	for {
		result := e.Step()
		if result.Err != nil {
			return result.Err
		}
		if result.Halted {
			break
		}
		fmt.Println("\tinstruction completed")
	}

	fmt.Println("[+] Final register state:")
	printRegisters(e)
	return nil
}

func printRegisters(e *emu.Emulator) {
	regs := e.Registers()
	names := make([]string, 0, len(regs))
	for name := range regs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("\t%s:\t%#x\n", name, regs[name])
	}
}
