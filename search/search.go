// Package search is the orchestrator (C9) and backward search engine
// (C7): it drives an ELF file through the loader, finds every byte
// offset whose decoded first instruction matches a chosen terminator,
// and walks backward from each match building the canonical set of
// gadgets. It never imports a disassembler backend directly; callers
// register one (by blank-importing disasm/x86 and/or disasm/arm)
// before calling any entry point here.
package search

import (
	"io"
	"log"

	"github.com/mewmew/ropgadget/canon"
	"github.com/mewmew/ropgadget/disasm"
	"github.com/mewmew/ropgadget/elfload"
	"github.com/mewmew/ropgadget/gadget"
	"github.com/mewmew/ropgadget/matcher"
	"github.com/mewmew/ropgadget/rlog"
	"github.com/pkg/errors"
)

// probeLen is the number of bytes decoded at each scanned offset before
// testing the matcher. 32 comfortably exceeds the longest x86
// instruction (15 bytes).
const probeLen = 32

// DefaultDepth is the backward-search depth used when a caller has no
// opinion of its own.
const DefaultDepth = 20

// SearchElfForRetGadgets returns the lazy sequence of return gadgets in
// the ELF file backed by r.
func SearchElfForRetGadgets(r io.ReaderAt, size int64, n int) (*GadgetIter, error) {
	return SearchElf(r, size, n, matcher.NewRets())
}

// SearchElfForJmpRegGadgets returns the lazy sequence of register-indirect
// unconditional jump gadgets in the ELF file backed by r.
func SearchElfForJmpRegGadgets(r io.ReaderAt, size int64, n int) (*GadgetIter, error) {
	return SearchElf(r, size, n, matcher.NewJmpRegUncond())
}

// SearchElfForCallRegGadgets returns the lazy sequence of register call
// gadgets in the ELF file backed by r.
func SearchElfForCallRegGadgets(r io.ReaderAt, size int64, n int) (*GadgetIter, error) {
	return SearchElf(r, size, n, matcher.NewCallReg())
}

// SearchElf is the lower-level entry point the three named searches
// above are built on: it opens the ELF file, resolves a disassembler
// for its architecture, and returns a GadgetIter driven by m.
func SearchElf(r io.ReaderAt, size int64, n int, m matcher.Matcher) (*GadgetIter, error) {
	return searchElf(r, size, n, m, nil, 0, ^uint64(0))
}

// SearchElfWithLog is SearchElf with an explicit log sink; a nil l
// falls back to rlog's package defaults.
func SearchElfWithLog(r io.ReaderAt, size int64, n int, m matcher.Matcher, l *log.Logger) (*GadgetIter, error) {
	return searchElf(r, size, n, m, l, 0, ^uint64(0))
}

// SearchElfInRange is SearchElf restricted to matched offsets whose
// address falls in [minAddr, maxAddr]. It lets an operator narrow a
// search to one known executable region without filtering the output
// stream themselves.
func SearchElfInRange(r io.ReaderAt, size int64, n int, m matcher.Matcher, minAddr, maxAddr uint64) (*GadgetIter, error) {
	return searchElf(r, size, n, m, nil, minAddr, maxAddr)
}

func searchElf(r io.ReaderAt, size int64, n int, m matcher.Matcher, l *log.Logger, minAddr, maxAddr uint64) (*GadgetIter, error) {
	a, segIt, err := elfload.Load(r, size, l)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	dasm, err := disasm.Find(a)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &GadgetIter{
		dasm:    dasm,
		segIt:   segIt,
		matcher: m,
		depth:   n,
		debug:   rlog.Default(l),
		minAddr: minAddr,
		maxAddr: maxAddr,
	}, nil
}

// GadgetIter lazily yields the canonical gadgets matched by one
// search, in the order guaranteed by §5: ascending segment base
// address, then ascending matched offset within a segment, then
// canonicalisation order, which is fixed by the candidate list's
// ascending backward-search depth k.
type GadgetIter struct {
	dasm    disasm.Disassembler
	segIt   *elfload.SegmentIter
	matcher matcher.Matcher
	depth   int
	debug   *log.Logger
	minAddr uint64
	maxAddr uint64

	haveSeg bool
	curSeg  gadget.Segment
	offset  int

	pending []gadget.Gadget
	pendIdx int

	cur  gadget.Gadget
	err  error
	done bool
}

// Next advances the iterator, reporting whether a gadget is available.
func (it *GadgetIter) Next() bool {
	for {
		if it.err != nil || it.done {
			return false
		}
		if it.pendIdx < len(it.pending) {
			it.cur = it.pending[it.pendIdx]
			it.pendIdx++
			return true
		}

		if !it.haveSeg {
			if !it.segIt.Next() {
				if err := it.segIt.Err(); err != nil {
					it.err = errors.WithStack(err)
					return false
				}
				it.done = true
				return false
			}
			it.curSeg = it.segIt.Segment()
			it.haveSeg = true
			it.offset = 0
			it.debug.Printf("search %d bytes starting at 0x%x", len(it.curSeg.Bytes), it.curSeg.BaseAddr)
		}

		if it.offset >= len(it.curSeg.Bytes) {
			it.haveSeg = false
			continue
		}

		i := it.offset
		it.offset++

		addr := it.curSeg.BaseAddr + uint64(i)
		if addr < it.minAddr || addr > it.maxAddr {
			continue
		}

		end := i + probeLen
		if end > len(it.curSeg.Bytes) {
			end = len(it.curSeg.Bytes)
		}
		probe := gadget.NewInstSeq(it.curSeg.BaseAddr+uint64(i), it.curSeg.Bytes[i:end], it.dasm)
		if probe.Len() == 0 {
			continue
		}
		if !it.matcher.Match(&probe) {
			continue
		}

		term := probe.Slice(0, 1)
		candidates := backwardSearch(it.curSeg, i, term, it.matcher, it.depth, it.dasm)
		it.pending = canon.Canonicalise(candidates)
		it.pendIdx = 0
	}
}

// Gadget returns the gadget most recently produced by Next.
func (it *GadgetIter) Gadget() gadget.Gadget { return it.cur }

// Err returns the first error encountered while searching, if any.
func (it *GadgetIter) Err() error { return it.err }

// backwardSearch implements §4.6: starting at the matched offset i
// inside seg, walk back one byte at a time up to depth n, building the
// raw (pre-canonicalisation) candidate list for this matched offset.
// term is the one-instruction terminator template; m is the matcher
// that found it.
func backwardSearch(seg gadget.Segment, i int, term gadget.InstSeq, m matcher.Matcher, n int, dasm disasm.Disassembler) []gadget.Gadget {
	if term.Len() != 1 {
		panic("search: terminator template must decode to exactly one instruction")
	}
	bsLen := len(term.Bytes())
	base := seg.BaseAddr + uint64(i)

	var candidates []gadget.Gadget
	for k := 1; k <= n; k++ {
		lo := i - k
		if lo < 0 {
			// Clip the back-window to the segment start; larger k only
			// grows further out of bounds, so stop here.
			break
		}
		hi := i + bsLen

		data := seg.Bytes[lo:hi]
		newSeq := gadget.NewInstSeq(base-uint64(k), data, dasm)
		nsLen := newSeq.Len()
		if nsLen <= term.Len() {
			continue
		}

		tail := newSeq.Slice(nsLen-term.Len(), nsLen)
		if !term.ProcEqual(&tail) {
			continue
		}

		// The real prefix offset corrects for a backward realignment
		// that produced a longer, equivalent encoding of the terminator.
		p := k + bsLen - len(tail.Bytes())
		g := gadget.NewGadget(base-uint64(k), data, dasm, p)

		suf := g.Suffix()
		if suf.ProcEqual(&term) {
			// The body already ends with an identical terminator; any
			// longer gadget here was already found at a smaller k.
			break
		}
		if m.Match(&suf) {
			// A different but equivalent terminator appears earlier in
			// the body; same reasoning as above.
			break
		}
		if suf.HasRet() {
			continue
		}
		if !m.AllowUncondFlow() && suf.HasUncondCtrlFlow() {
			continue
		}
		if !m.AllowCondFlow() && suf.HasCondCtrlFlow() {
			continue
		}
		if g.HasBadIns() {
			continue
		}

		cg, ok := g.Compact()
		if !ok {
			continue
		}
		candidates = append(candidates, cg)
	}
	return candidates
}
