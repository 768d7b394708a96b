// Package arm adapts golang.org/x/arch/arm/armasm to the disasm.Disassembler
// contract for the ARM, Thumb1 and Thumb2 architecture tags. Unlike the x86
// backend, which classifies instructions against x86asm's typed Op/Args,
// this backend classifies against the rendered GNU-syntax mnemonic, in
// which a stack pop prints as "pop {r4, pc}" and other stack-based loads
// as "ldm sp, {...}". armasm decodes ARM mode only: in Thumb mode every decode fails, so
// the Thumb1 and Thumb2 tags yield nothing but a bad instruction.
package arm

import (
	"regexp"

	"github.com/mewmew/ropgadget/arch"
	"github.com/mewmew/ropgadget/disasm"
	"golang.org/x/arch/arm/armasm"
)

func init() {
	disasm.Register("armasm", 100, newBackend)
}

func newBackend(a arch.Architecture) (disasm.Disassembler, error) {
	switch a {
	case arch.ARM:
		return &Disassembler{arch: a, mode: armasm.ModeARM}, nil
	case arch.Thumb1, arch.Thumb2:
		return &Disassembler{arch: a, mode: armasm.ModeThumb}, nil
	default:
		return nil, nil
	}
}

// Disassembler decodes ARM or Thumb machine code with armasm.
type Disassembler struct {
	arch arch.Architecture
	mode armasm.Mode
}

// Arch implements disasm.Disassembler.
func (d *Disassembler) Arch() arch.Architecture { return d.arch }

// Decode implements disasm.Disassembler.
func (d *Disassembler) Decode(addr uint64, data []byte) disasm.InstIter {
	return &instIter{d: d, addr: addr, rest: data}
}

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
	inst, err := armasm.Decode(it.rest, it.d.mode)
	if err != nil || inst.Len == 0 {
		n := 1
		// The bad marker covers one Thumb halfword (2 bytes) or one ARM
		// word (4 bytes), or whatever shorter remainder is left.
		if it.d.mode == armasm.ModeThumb && len(it.rest) >= 2 {
			n = 2
		} else if it.d.mode == armasm.ModeARM && len(it.rest) >= 4 {
			n = 4
		}
		if n > len(it.rest) {
			n = len(it.rest)
		}
		it.cur = &Instruction{
			addr: it.addr,
			data: it.rest[:n],
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

// Instruction is a decoded ARM or Thumb instruction.
type Instruction struct {
	addr uint64
	data []byte
	arch arch.Architecture
	inst armasm.Inst
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
	return armasm.GNUSyntax(i.inst)
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

var (
	nopRE          = regexp.MustCompile(`(?i)^nop(\.\w+)?$`)
	retLDMPopRE    = regexp.MustCompile(`(?i)^(pop\w*\s+|ldm\w*\s+sp!?,\s*)\{[^}]*\bpc\b[^}]*\}$`)
	bxLrRE         = regexp.MustCompile(`(?i)^bx\w*\s+lr$`)
	jmpRegUncondRE = regexp.MustCompile(`(?i)^(bx\w*\s+r\d+$|(mov|ldr)\w*\s+pc\b)`)
	callRegRE      = regexp.MustCompile(`(?i)^blx\w*\s+r\d+$`)
	// GNU syntax fuses the condition code onto the opcode ("bxeq", "blne").
	condSuffixRE = regexp.MustCompile(`(?i)^b(l|lx|x)?(eq|ne|cs|cc|mi|pl|vs|vc|hi|ls|ge|lt|gt|le)\s`)
	branchRE     = regexp.MustCompile(`(?i)^b(l|lx|x)?(eq|ne|cs|cc|mi|pl|vs|vc|hi|ls|ge|lt|gt|le)?\s`)
)

// Nop implements disasm.Instruction.
func (i *Instruction) Nop() bool {
	if i.bad {
		return false
	}
	return nopRE.MatchString(i.Mnemonic())
}

// Ret implements disasm.Instruction. It recognises a POP/LDM variant
// whose destination register list includes PC and whose base register
// is SP, and the common "bx lr" function-return idiom.
func (i *Instruction) Ret() bool {
	if i.bad {
		return false
	}
	m := i.Mnemonic()
	return retLDMPopRE.MatchString(m) || bxLrRE.MatchString(m)
}

// JmpRegUncond implements disasm.Instruction.
func (i *Instruction) JmpRegUncond() bool {
	if i.bad || i.Ret() {
		return false
	}
	return jmpRegUncondRE.MatchString(i.Mnemonic())
}

// CallReg implements disasm.Instruction.
func (i *Instruction) CallReg() bool {
	if i.bad {
		return false
	}
	return callRegRE.MatchString(i.Mnemonic())
}

// HasUncondCtrlFlow implements disasm.Instruction.
func (i *Instruction) HasUncondCtrlFlow() bool {
	if i.bad {
		return false
	}
	m := i.Mnemonic()
	if i.Ret() || i.CallReg() {
		return true
	}
	// An unconditional branch carries no condition-code suffix.
	return branchRE.MatchString(m) && !condSuffixRE.MatchString(m)
}

// HasCondCtrlFlow implements disasm.Instruction.
func (i *Instruction) HasCondCtrlFlow() bool {
	if i.bad {
		return false
	}
	m := i.Mnemonic()
	return branchRE.MatchString(m) && condSuffixRE.MatchString(m)
}

// Bad implements disasm.Instruction.
func (i *Instruction) Bad() bool {
	return i.bad
}
