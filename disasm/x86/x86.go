// Package x86 adapts golang.org/x/arch/x86/x86asm to the disasm.Disassembler
// contract, classifying decoded instructions into the terminator and
// control-flow categories the gadget search needs for both x86 and x86-64.
package x86

import (
	"fmt"
	"regexp"

	"github.com/mewmew/ropgadget/arch"
	"github.com/mewmew/ropgadget/disasm"
	"golang.org/x/arch/x86/x86asm"
)

func init() {
	disasm.Register("x86asm", 100, newBackend)
}

// newBackend is the disasm.BackendFactory registered for this package. It
// never fails to find its library (x86asm is a compiled-in Go package, not
// a dynamically loaded one), so it only ever returns (nil, nil) for
// architectures outside its family.
func newBackend(a arch.Architecture) (disasm.Disassembler, error) {
	switch a {
	case arch.X86:
		return &Disassembler{arch: arch.X86, mode: 32}, nil
	case arch.X86_64:
		return &Disassembler{arch: arch.X86_64, mode: 64}, nil
	default:
		return nil, nil
	}
}

// Disassembler decodes x86 or x86-64 machine code with x86asm.
type Disassembler struct {
	arch arch.Architecture
	mode int
}

// Arch implements disasm.Disassembler.
func (d *Disassembler) Arch() arch.Architecture { return d.arch }

// Decode implements disasm.Disassembler.
func (d *Disassembler) Decode(addr uint64, data []byte) disasm.InstIter {
	return &instIter{d: d, addr: addr, rest: data}
}

// instIter greedily decodes data one instruction at a time, stopping (but
// not erroring) at the first byte x86asm rejects.
type instIter struct {
	d    *Disassembler
	addr uint64
	rest []byte
	cur  *Instruction
	done bool
}

func (it *instIter) Next() bool {
	if it.done || len(it.rest) == 0 {
		return false
	}
	inst, err := x86asm.Decode(it.rest, it.d.mode)
	if err != nil || inst.Len == 0 {
		// Undecodable byte: yield a single synthetic bad instruction
		// covering it and stop; the core never requests decoding past
		// a bad instruction (§4.2).
		it.cur = &Instruction{
			addr: it.addr,
			data: it.rest[:1],
			arch: it.d.arch,
			bad:  true,
		}
		it.done = true
		return true
	}
	it.cur = &Instruction{
		addr: it.addr,
		data: it.rest[:inst.Len],
		arch: it.d.arch,
		inst: inst,
	}
	it.addr += uint64(inst.Len)
	it.rest = it.rest[inst.Len:]
	return true
}

func (it *instIter) Inst() disasm.Instruction { return it.cur }

// Instruction is a decoded x86/x86-64 instruction.
type Instruction struct {
	addr uint64
	data []byte
	arch arch.Architecture
	inst x86asm.Inst
	bad  bool
}

var _ disasm.Instruction = (*Instruction)(nil)

// Addr implements disasm.Instruction.
func (i *Instruction) Addr() uint64 { return i.addr }

// Bytes implements disasm.Instruction.
func (i *Instruction) Bytes() []byte { return i.data }

// Arch implements disasm.Instruction.
func (i *Instruction) Arch() arch.Architecture { return i.arch }

// Mnemonic implements disasm.Instruction.
func (i *Instruction) Mnemonic() string {
	if i.bad {
		return "(bad)"
	}
	return x86asm.GNUSyntax(i.inst, i.addr, nil)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Equal implements disasm.Instruction.
func (i *Instruction) Equal(other disasm.Instruction) bool {
	o, ok := other.(*Instruction)
	if !ok {
		return false
	}
	return bytesEqual(i.data, o.data) && i.addr == o.addr && i.arch == o.arch
}

// Same implements disasm.Instruction.
func (i *Instruction) Same(other disasm.Instruction) bool {
	o, ok := other.(*Instruction)
	if !ok {
		return false
	}
	return bytesEqual(i.data, o.data) && i.arch == o.arch
}

// Nop implements disasm.Instruction. It recognises the NOP opcode and
// register-to-self MOV/XCHG forms, e.g. "mov eax, eax".
func (i *Instruction) Nop() bool {
	if i.bad {
		return false
	}
	switch i.inst.Op {
	case x86asm.NOP, x86asm.FNOP:
		return true
	case x86asm.MOV, x86asm.XCHG:
		r1, ok1 := i.inst.Args[0].(x86asm.Reg)
		r2, ok2 := i.inst.Args[1].(x86asm.Reg)
		return ok1 && ok2 && r1 == r2
	}
	return false
}

// retRE matches RET and the RETF family by name, as a fallback for any
// opcode x86asm classifies outside the RET/LRET constants below.
var retRE = regexp.MustCompile(`^RETF?( |$)`)

// Ret implements disasm.Instruction.
func (i *Instruction) Ret() bool {
	if i.bad {
		return false
	}
	switch i.inst.Op {
	case x86asm.RET, x86asm.LRET:
		return true
	}
	return retRE.MatchString(i.inst.Op.String())
}

// regTarget reports whether arg is a register, or memory addressed
// through a register (direct or indirect target of a jmp/call).
func regTarget(arg x86asm.Arg) bool {
	switch a := arg.(type) {
	case x86asm.Reg:
		return true
	case x86asm.Mem:
		return a.Base != 0 || a.Index != 0
	}
	return false
}

// JmpRegUncond implements disasm.Instruction.
func (i *Instruction) JmpRegUncond() bool {
	if i.bad || i.inst.Op != x86asm.JMP {
		return false
	}
	return regTarget(i.inst.Args[0])
}

// CallReg implements disasm.Instruction.
func (i *Instruction) CallReg() bool {
	if i.bad || i.inst.Op != x86asm.CALL {
		return false
	}
	return regTarget(i.inst.Args[0])
}

// HasUncondCtrlFlow implements disasm.Instruction.
func (i *Instruction) HasUncondCtrlFlow() bool {
	if i.bad {
		return false
	}
	switch i.inst.Op {
	case x86asm.CALL, x86asm.JMP, x86asm.RET, x86asm.LRET:
		return true
	}
	return false
}

// condJumpOps lists every conditional jump mnemonic, excluding the
// unconditional JMP itself.
var condJumpOps = map[x86asm.Op]bool{
	x86asm.JA: true, x86asm.JAE: true, x86asm.JB: true, x86asm.JBE: true,
	x86asm.JCXZ: true, x86asm.JE: true, x86asm.JECXZ: true, x86asm.JG: true,
	x86asm.JGE: true, x86asm.JL: true, x86asm.JLE: true, x86asm.JNE: true,
	x86asm.JNO: true, x86asm.JNP: true, x86asm.JNS: true, x86asm.JO: true,
	x86asm.JP: true, x86asm.JRCXZ: true, x86asm.JS: true,
}

// HasCondCtrlFlow implements disasm.Instruction.
func (i *Instruction) HasCondCtrlFlow() bool {
	if i.bad {
		return false
	}
	return condJumpOps[i.inst.Op]
}

// badRE matches the mnemonic classes a gadget body may never contain:
// DB (pseudo-op for an undecodable byte), OUTS, IN, INS, HLT.
var badRE = regexp.MustCompile(`^(DB |OUTS |IN |INS |HLT$)`)

// Bad implements disasm.Instruction. Bad is evaluated independently of
// Ret: a RET is both a valid terminator and a forbidden body instruction
// (design note, §9), so Bad reports true for RET/LRET as well; callers
// only ever consult Bad over a gadget's suffix, never its prefix.
func (i *Instruction) Bad() bool {
	if i.bad {
		return true
	}
	switch i.inst.Op {
	case x86asm.OUTSB, x86asm.OUTSW, x86asm.OUTSD,
		x86asm.INSB, x86asm.INSW, x86asm.INSD,
		x86asm.IN, x86asm.HLT,
		x86asm.RET, x86asm.LRET:
		return true
	}
	return badRE.MatchString(fmt.Sprintf("%s ", i.inst.Op))
}
