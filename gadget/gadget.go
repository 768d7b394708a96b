// Package gadget defines the immutable value types shared by the backward
// search engine and the canonicaliser: a contiguous executable memory
// Segment, an ordered InstSeq of decoded instructions, and a Gadget (an
// InstSeq plus the byte offset of its terminator).
package gadget

import (
	"github.com/mewmew/ropgadget/disasm"
)

// Segment is a maximal contiguous span of executable virtual memory as it
// would appear in a process image at load time. For any index i in
// range, Bytes[i] is mapped at virtual address BaseAddr+i.
type Segment struct {
	Bytes    []byte
	BaseAddr uint64
}

// InstSeq is an ordered, non-empty sequence of instructions decoded from a
// contiguous byte range starting at one base address. Decoding is
// performed lazily on first use and memoised, since every accessor below
// is read repeatedly during backward search and canonicalisation; this is
// an implementation freedom the concurrency model explicitly grants, not
// an observable difference from eager decoding.
type InstSeq struct {
	base uint64
	data []byte
	dasm disasm.Disassembler

	insts *[]disasm.Instruction // populated lazily; shared across copies rooted at the same decode
}

// NewInstSeq returns the instruction sequence decoded from data, as though
// data were loaded at virtual address base.
func NewInstSeq(base uint64, data []byte, dasm disasm.Disassembler) InstSeq {
	return InstSeq{base: base, data: data, dasm: dasm}
}

func (s *InstSeq) decode() []disasm.Instruction {
	if s.insts != nil {
		return *s.insts
	}
	var insts []disasm.Instruction
	it := s.dasm.Decode(s.base, s.data)
	for it.Next() {
		insts = append(insts, it.Inst())
	}
	s.insts = &insts
	return insts
}

// Addr returns the address of the first instruction in the sequence.
func (s InstSeq) Addr() uint64 { return s.base }

// Bytes returns the raw bytes the sequence was decoded from.
func (s InstSeq) Bytes() []byte { return s.data }

// Len returns the number of decoded instructions.
func (s *InstSeq) Len() int { return len(s.decode()) }

// At returns the i'th decoded instruction.
func (s *InstSeq) At(i int) disasm.Instruction { return s.decode()[i] }

// Slice returns a new InstSeq rooted at the first sliced instruction,
// covering instructions [i:j).
func (s *InstSeq) Slice(i, j int) InstSeq {
	insts := s.decode()[i:j]
	start := 0
	if i > 0 {
		prev := s.decode()[i-1]
		start = int(prev.Addr()-s.base) + len(prev.Bytes())
	}
	end := len(s.data)
	if j < len(s.decode()) {
		next := s.decode()[j]
		end = int(next.Addr() - s.base)
	}
	sub := NewInstSeq(insts[0].Addr(), s.data[start:end], s.dasm)
	cp := append([]disasm.Instruction(nil), insts...)
	sub.insts = &cp
	return sub
}

// Reverse returns the decoded instructions in reverse order.
func (s *InstSeq) Reverse() []disasm.Instruction {
	insts := s.decode()
	out := make([]disasm.Instruction, len(insts))
	for i, inst := range insts {
		out[len(insts)-1-i] = inst
	}
	return out
}

// StrSeq returns the mnemonic rendering of each instruction, in order.
func (s *InstSeq) StrSeq() []string {
	insts := s.decode()
	out := make([]string, len(insts))
	for i, inst := range insts {
		out[i] = inst.Mnemonic()
	}
	return out
}

// AsPrefix returns the mnemonic rendering of each instruction, read tail
// first (i.e. the reverse of StrSeq). It is called "prefix" because it is
// the prefix of the reversed view: two gadgets sharing a common tail
// share a common AsPrefix prefix, which is exactly what canonicalisation
// partitions on.
func (s *InstSeq) AsPrefix() []string {
	rev := s.Reverse()
	out := make([]string, len(rev))
	for i, inst := range rev {
		out[i] = inst.Mnemonic()
	}
	return out
}

// SameStrSeq reports whether strs is the same as this sequence's mnemonic
// rendering list, comparing element-wise up to the shorter length's
// extent, so a shorter sequence can still match a longer one's head.
func (s *InstSeq) SameStrSeq(strs []string) bool {
	mine := s.StrSeq()
	for i := 0; i < len(mine) && i < len(strs); i++ {
		if mine[i] != strs[i] {
			return false
		}
	}
	return true
}

// ProcEqual reports whether two sequences are "procedure equal": their
// mnemonic sequences match, regardless of location or encoding. Unlike
// SameStrSeq, both sequences must have the same length.
func (s *InstSeq) ProcEqual(other *InstSeq) bool {
	return s.Len() == other.Len() && s.SameStrSeq(other.StrSeq())
}

// HasUncondCtrlFlow reports whether any instruction in the sequence has
// unconditional control flow.
func (s *InstSeq) HasUncondCtrlFlow() bool {
	for _, inst := range s.decode() {
		if inst.HasUncondCtrlFlow() {
			return true
		}
	}
	return false
}

// HasCondCtrlFlow reports whether any instruction in the sequence has
// conditional control flow.
func (s *InstSeq) HasCondCtrlFlow() bool {
	for _, inst := range s.decode() {
		if inst.HasCondCtrlFlow() {
			return true
		}
	}
	return false
}

// HasRet reports whether any instruction in the sequence is a return.
func (s *InstSeq) HasRet() bool {
	for _, inst := range s.decode() {
		if inst.Ret() {
			return true
		}
	}
	return false
}

// HasBad reports whether any instruction in the sequence is bad.
func (s *InstSeq) HasBad() bool {
	for _, inst := range s.decode() {
		if inst.Bad() {
			return true
		}
	}
	return false
}

// Nop reports whether every instruction in the sequence is a no-op.
func (s *InstSeq) Nop() bool {
	for _, inst := range s.decode() {
		if !inst.Nop() {
			return false
		}
	}
	return true
}

// withoutNopPrefix returns the sequence with any leading run of nop
// instructions stripped.
func (s *InstSeq) withoutNopPrefix() InstSeq {
	insts := s.decode()
	i := 0
	for i < len(insts) && insts[i].Nop() {
		i++
	}
	return s.Slice(i, len(insts))
}

// Gadget is an InstSeq with the byte offset at which the matched
// terminator begins.
type Gadget struct {
	InstSeq
	ParentOffset int
}

// NewGadget returns a new gadget rooted at addr, decoding data, with its
// terminator beginning at byte offset parentOffset.
func NewGadget(addr uint64, data []byte, dasm disasm.Disassembler, parentOffset int) Gadget {
	return Gadget{InstSeq: NewInstSeq(addr, data, dasm), ParentOffset: parentOffset}
}

// Suffix returns the gadget's body: the prefix bytes of the sequence
// preceding the terminator, re-decoded.
func (g *Gadget) Suffix() InstSeq {
	return NewInstSeq(g.Addr(), g.Bytes()[:g.ParentOffset], g.dasmOf())
}

// Parent returns the gadget's terminator, re-decoded as its own
// instruction sequence.
func (g *Gadget) Parent() InstSeq {
	return NewInstSeq(g.Addr()+uint64(g.ParentOffset), g.Bytes()[g.ParentOffset:], g.dasmOf())
}

// Prefix is an alias for Parent: the matched tail instruction of the
// gadget, called "prefix" because it is the prefix of the reversed view.
func (g *Gadget) Prefix() InstSeq { return g.Parent() }

func (g *Gadget) dasmOf() disasm.Disassembler { return g.InstSeq.dasm }

// Nop reports whether the gadget's suffix is entirely no-ops.
func (g *Gadget) Nop() bool {
	suf := g.Suffix()
	return suf.Nop()
}

// HasBadIns reports whether any instruction in the gadget's suffix is
// bad. Bad is never consulted over the terminator itself.
func (g *Gadget) HasBadIns() bool {
	suf := g.Suffix()
	return suf.HasBad()
}

// Compact strips any leading run of nop instructions from the gadget's
// suffix, returning a new gadget with the same terminator but a later
// address and a smaller parent offset. If the entire suffix is nops,
// compaction drops the gadget (it would be indistinguishable from the
// bare terminator); the second return value reports whether compaction
// produced a usable gadget. Compaction is idempotent.
func (g *Gadget) Compact() (Gadget, bool) {
	if g.Nop() {
		return Gadget{}, false
	}
	suf := g.Suffix()
	if suf.Len() == 0 || !suf.At(0).Nop() {
		return *g, true
	}
	trimmed := suf.withoutNopPrefix()
	data := append([]byte(nil), trimmed.Bytes()...)
	data = append(data, g.Parent().Bytes()...)
	return NewGadget(trimmed.Addr(), data, g.dasmOf(), len(trimmed.Bytes())), true
}
