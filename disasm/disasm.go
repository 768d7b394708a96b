// Package disasm defines the narrow contract the gadget-search engine
// consumes from a disassembler: decode bytes at an address into a lazy
// sequence of instructions carrying a fixed set of semantic predicates.
// Concrete backends (package disasm/x86, disasm/arm) register themselves
// here; the search engine never imports a backend directly.
package disasm

import (
	"sort"
	"sync"

	"github.com/mewmew/ropgadget/arch"
	"github.com/pkg/errors"
)

// Instruction is a single decoded instruction. Implementations are
// immutable value types, one concrete type per backend (design note:
// "bad and good instruction subtypes are better expressed as a single
// instruction value whose semantic predicates return false/true", so
// there is exactly one Instruction type per architecture family, not a
// class hierarchy of good/bad subtypes).
type Instruction interface {
	// Addr is the absolute virtual address of the instruction.
	Addr() uint64
	// Bytes is the non-empty encoding of the instruction.
	Bytes() []byte
	// Arch is the architecture the instruction was decoded for.
	Arch() arch.Architecture
	// Mnemonic renders the instruction in a form suitable both for
	// regexp matching and for pretty display.
	Mnemonic() string

	// Equal compares (bytes, addr, architecture).
	Equal(other Instruction) bool
	// Same compares (bytes, architecture), ignoring addr.
	Same(other Instruction) bool

	// Nop reports whether the instruction is a pure no-op, including
	// register-to-self moves on x86.
	Nop() bool
	// Ret reports whether the instruction pops a stack value and jumps
	// to it.
	Ret() bool
	// JmpRegUncond reports whether the instruction is an unconditional
	// branch whose target is a register, direct or indirect.
	JmpRegUncond() bool
	// CallReg reports whether the instruction is a call whose target is
	// a register, direct or indirect.
	CallReg() bool
	// HasUncondCtrlFlow reports whether the instruction is any call, any
	// unconditional branch, or a return.
	HasUncondCtrlFlow() bool
	// HasCondCtrlFlow reports whether the instruction is a conditional
	// branch.
	HasCondCtrlFlow() bool
	// Bad reports whether the instruction belongs to one of the encoding
	// classes the core rejects outright, or is the synthetic marker a
	// backend yields when it could not decode at all. Bad is evaluated
	// independently of Ret: on x86 a RET is simultaneously a valid
	// terminator (Ret() true) and a forbidden body instruction (Bad()
	// true), while the ARM backend reports Bad only for its undecodable
	// marker. Bad is only ever consulted over a gadget's suffix, never
	// its prefix.
	Bad() bool
}

// InstIter is a pull-based, lazy sequence of decoded instructions
// produced by a single Decode call. The caller drives it:
//
//	for it.Next() {
//	    use(it.Inst())
//	}
type InstIter interface {
	// Next advances the iterator and reports whether an instruction is
	// available. Decoding stops after Next returns false.
	Next() bool
	// Inst returns the instruction most recently produced by Next.
	Inst() Instruction
}

// Disassembler decodes machine code for one architecture.
type Disassembler interface {
	// Arch returns the architecture this disassembler decodes.
	Arch() arch.Architecture
	// Decode returns a lazy sequence of instructions decoded from data,
	// as though data were loaded starting at the virtual address addr.
	// The sequence starts at addr, covers bytes greedily from the
	// start, and stops at the first undecodable byte, yielding a bad
	// instruction (Bad() true) rather than raising. It never re-syncs
	// past a bad instruction.
	Decode(addr uint64, data []byte) InstIter
}

// ErrArchNotSupported is returned by Find when no registered backend can
// decode the requested architecture.
var ErrArchNotSupported = errors.New("architecture not supported by any registered disassembler backend")

// ErrLibNotFound is returned by a BackendFactory when its underlying
// third-party library is not available. It is not fatal: it demotes the
// backend in the discovery loop so the next-ranked backend is tried.
var ErrLibNotFound = errors.New("disassembler backend library not found")

// BackendFactory builds a Disassembler for the given architecture. It
// returns (nil, nil) when its library is present but does not support a,
// and (nil, ErrLibNotFound) when its library is altogether unavailable;
// either return falls through to the next-ranked factory. Any other
// error is fatal to Find.
type BackendFactory func(a arch.Architecture) (Disassembler, error)

type backendEntry struct {
	name    string
	rank    int
	factory BackendFactory
}

var (
	registryMu sync.Mutex
	registry   []backendEntry
)

// Register adds a named backend factory at the given rank to the global
// registry. Backends call this from an init() func so that a caller need
// only blank-import the backend packages it wants available, regardless
// of how many architectures are registered.
func Register(name string, rank int, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, backendEntry{name: name, rank: rank, factory: factory})
}

// Find resolves a Disassembler for a by scanning registered backends in
// descending rank order, per the backend discovery rules: the first
// factory to return a non-nil Disassembler wins; ErrLibNotFound and a
// (nil, nil) "unsupported" result both demote to the next factory; any
// other error aborts immediately. ErrArchNotSupported is returned if no
// backend succeeds.
func Find(a arch.Architecture) (Disassembler, error) {
	registryMu.Lock()
	entries := make([]backendEntry, len(registry))
	copy(entries, registry)
	registryMu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].rank > entries[j].rank
	})

	var tried []string
	for _, e := range entries {
		d, err := e.factory(a)
		if err != nil {
			if errors.Cause(err) == ErrLibNotFound {
				tried = append(tried, e.name+" (library not found)")
				continue
			}
			return nil, errors.Wrapf(err, "backend %q failed", e.name)
		}
		if d == nil {
			tried = append(tried, e.name+" (architecture unsupported)")
			continue
		}
		return d, nil
	}
	return nil, errors.Wrapf(ErrArchNotSupported, "arch %v, tried: %v", a, tried)
}
