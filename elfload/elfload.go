// Package elfload opens an ELF file, detects its architecture, and
// reconstructs the load-time executable memory map: the union of all
// PF_X program segments, projected into contiguous byte buffers the way
// they would appear in a process image.
package elfload

import (
	"debug/elf"
	"io"
	"log"
	"sort"

	"github.com/kr/pretty"
	"github.com/mewmew/ropgadget/arch"
	"github.com/mewmew/ropgadget/gadget"
	"github.com/mewmew/ropgadget/rlog"
	"github.com/pkg/errors"
)

// Load opens the ELF file backed by r (of the given size), reports its
// section/segment counts, detects its architecture, and returns a
// SegmentIter that lazily yields the executable memory map. log receives
// debug and warning messages; a nil log falls back to rlog's defaults.
func Load(r io.ReaderAt, size int64, log *log.Logger) (arch.Architecture, *SegmentIter, error) {
	debug := rlog.Default(log)
	warn := rlog.DefaultWarn(log)

	f, err := elf.NewFile(r)
	if err != nil {
		return 0, nil, errors.Wrap(err, "parse elf file")
	}
	debug.Printf("parsed elf file with %d sections and %d segments", len(f.Sections), len(f.Progs))

	a, err := arch.FromElfMachineConst(f.Machine)
	if err != nil {
		return 0, nil, errors.WithStack(err)
	}
	debug.Printf("elf file arch is %v", a)

	return a, newSegmentIter(f, debug, warn), nil
}

// xSegments returns the PF_X program segments of f, in the order
// debug/elf enumerated them. *elf.Prog embeds an io.ReaderAt bounded to
// exactly its on-file bytes (reading at offset 0 yields the first byte
// of the segment), so no raw file offset bookkeeping is needed here.
func xSegments(f *elf.File) []*elf.Prog {
	var result []*elf.Prog
	for _, p := range f.Progs {
		if p.Flags&elf.PF_X == 0 {
			continue
		}
		result = append(result, p)
	}
	return result
}

// interval is a half-open [lo, hi) virtual address range.
type interval struct {
	lo, hi uint64
}

// unionIntervals merges the given half-open intervals (each already
// widened by +1 by the caller, per the interval-union trick) into the
// maximal set of disjoint, merged half-open intervals, sorted by lo.
func unionIntervals(ivls []interval) []interval {
	if len(ivls) == 0 {
		return nil
	}
	sorted := append([]interval(nil), ivls...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].lo < sorted[j].lo })

	var out []interval
	cur := sorted[0]
	for _, ivl := range sorted[1:] {
		if ivl.lo <= cur.hi {
			if ivl.hi > cur.hi {
				cur.hi = ivl.hi
			}
			continue
		}
		out = append(out, cur)
		cur = ivl
	}
	out = append(out, cur)
	return out
}

// SegmentIter lazily yields the executable segments of an ELF file, one
// per maximal contiguous span of executable virtual memory.
type SegmentIter struct {
	f     *elf.File
	debug *log.Logger
	warn  *log.Logger

	valid   []*elf.Prog // PF_X segments surviving the §4.3 filter, in file order
	ivls    []interval
	idx     int
	emitted int
	inited  bool

	cur gadget.Segment
	err error
	done bool
}

func newSegmentIter(f *elf.File, debug, warn *log.Logger) *SegmentIter {
	return &SegmentIter{f: f, debug: debug, warn: warn}
}

func (it *SegmentIter) init() {
	it.inited = true

	var raw []interval
	for _, xs := range xSegments(it.f) {
		if xs.Filesz == 0 {
			it.debug.Printf("segment is empty on file (0x%x), skipping", xs.Vaddr)
			continue
		}
		if xs.Filesz != xs.Memsz {
			it.warn.Printf("segment at 0x%x has filesz %d != memsz %d, skipping", xs.Vaddr, xs.Filesz, xs.Memsz)
			continue
		}
		it.valid = append(it.valid, xs)
		// The trailing +1 makes touching intervals merge (§4.3 step 3);
		// the upper bound becomes exclusive again after the union.
		raw = append(raw, interval{lo: xs.Vaddr, hi: xs.Vaddr + xs.Memsz + 1})
	}
	it.ivls = unionIntervals(raw)
	it.debug.Printf("executable data interval set: %s", pretty.Sprint(it.ivls))
}

// Next advances the iterator, reporting whether a segment is available.
func (it *SegmentIter) Next() bool {
	if it.err != nil || it.done {
		return false
	}
	if !it.inited {
		it.init()
	}
	for it.idx < len(it.ivls) {
		ivl := it.ivls[it.idx]
		it.idx++

		lower, upper := ivl.lo, ivl.hi-1 // back to inclusive lower, exclusive upper
		size := upper - lower
		if size == 0 {
			continue
		}

		sorted := make([]*elf.Prog, 0, len(it.valid))
		for _, xs := range it.valid {
			if xs.Vaddr >= lower && xs.Vaddr < upper {
				sorted = append(sorted, xs)
			}
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Vaddr < sorted[j].Vaddr })

		buf := make([]byte, size)
		for _, xs := range sorted {
			data := make([]byte, xs.Filesz)
			if _, err := xs.ReaderAt.ReadAt(data, 0); err != nil && err != io.EOF {
				it.err = errors.Wrapf(err, "read segment bytes at vaddr 0x%x", xs.Vaddr)
				return false
			}
			start := xs.Vaddr - lower
			// Last writer wins by ascending p_vaddr (§9 open question):
			// a later, overlapping segment overwrites the bytes of an
			// earlier one rather than being clipped by it.
			copy(buf[start:], data)
		}

		it.emitted++
		it.cur = gadget.Segment{Bytes: buf, BaseAddr: lower}
		return true
	}
	if it.emitted == 0 {
		it.warn.Printf("no executable data found; search will yield no gadgets")
	}
	it.done = true
	return false
}

// Segment returns the segment most recently produced by Next.
func (it *SegmentIter) Segment() gadget.Segment { return it.cur }

// Err returns the first error encountered while reading segment bytes,
// if any.
func (it *SegmentIter) Err() error { return it.err }
