// Package matcher selects which decoded instruction, at the head of a
// probe sequence, the backward search engine should treat as a gadget
// terminator.
package matcher

import (
	"regexp"

	"github.com/mewmew/ropgadget/gadget"
)

// Matcher is a predicate over an instruction sequence's first element,
// paired with two flags controlling whether a gadget body may itself
// contain intra-gadget control flow.
type Matcher interface {
	// Match reports whether seq[0] is a terminator this matcher hunts
	// for.
	Match(seq *gadget.InstSeq) bool
	// AllowUncondFlow reports whether a gadget body may contain
	// unconditional control flow (call/jmp/ret) without being rejected.
	AllowUncondFlow() bool
	// AllowCondFlow reports whether a gadget body may contain
	// conditional control flow without being rejected.
	AllowCondFlow() bool
}

// base implements the flag bookkeeping shared by every concrete matcher.
type base struct {
	uncondFlow bool
	condFlow   bool
}

func (b base) AllowUncondFlow() bool { return b.uncondFlow }
func (b base) AllowCondFlow() bool   { return b.condFlow }

func newBase() base { return base{uncondFlow: true, condFlow: true} }

// Rets matches any return instruction.
type Rets struct{ base }

// NewRets returns a Matcher selecting return instructions.
func NewRets() Matcher { return Rets{newBase()} }

// Match implements Matcher.
func (Rets) Match(seq *gadget.InstSeq) bool { return seq.At(0).Ret() }

// JmpRegUncond matches an unconditional branch through a register.
type JmpRegUncond struct{ base }

// NewJmpRegUncond returns a Matcher selecting register-indirect
// unconditional jumps.
func NewJmpRegUncond() Matcher { return JmpRegUncond{newBase()} }

// Match implements Matcher.
func (JmpRegUncond) Match(seq *gadget.InstSeq) bool { return seq.At(0).JmpRegUncond() }

// CallReg matches a call through a register.
type CallReg struct{ base }

// NewCallReg returns a Matcher selecting register-indirect calls.
func NewCallReg() Matcher { return CallReg{newBase()} }

// Match implements Matcher.
func (CallReg) Match(seq *gadget.InstSeq) bool { return seq.At(0).CallReg() }

// Regex matches any instruction whose mnemonic rendering satisfies a
// compiled pattern. The three named matchers above do not use it (they
// call the instruction's own predicates); it is exposed for callers who
// need a terminator class none of the three cover.
type Regex struct {
	base
	re *regexp.Regexp
}

// NewRegex compiles pattern case-insensitively and returns a Matcher
// selecting instructions whose mnemonic matches it.
func NewRegex(pattern string) (Matcher, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	return Regex{base: newBase(), re: re}, nil
}

// Match implements Matcher.
func (r Regex) Match(seq *gadget.InstSeq) bool {
	return r.re.MatchString(seq.At(0).Mnemonic())
}
