package elfload

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/mewmew/ropgadget/arch"
)

// buildMinimalELF64 constructs a tiny well-formed ELF64 little-endian
// executable with one PT_LOAD, PF_X program header covering code, for
// exercising Load end to end without shipping a binary fixture.
func buildMinimalELF64(t *testing.T, code []byte, vaddr uint64) []byte {
	t.Helper()

	const (
		ehsize = 64
		phsize = 56
	)
	phoff := uint64(ehsize)
	codeOff := phoff + phsize

	buf := &bytes.Buffer{}
	// e_ident
	buf.Write([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0})
	buf.Write(make([]byte, 8)) // padding
	binary.Write(buf, binary.LittleEndian, uint16(2))               // e_type = ET_EXEC
	binary.Write(buf, binary.LittleEndian, uint16(62))              // e_machine = EM_X86_64
	binary.Write(buf, binary.LittleEndian, uint32(1))               // e_version
	binary.Write(buf, binary.LittleEndian, uint64(vaddr))           // e_entry
	binary.Write(buf, binary.LittleEndian, phoff)                   // e_phoff
	binary.Write(buf, binary.LittleEndian, uint64(0))               // e_shoff
	binary.Write(buf, binary.LittleEndian, uint32(0))               // e_flags
	binary.Write(buf, binary.LittleEndian, uint16(ehsize))          // e_ehsize
	binary.Write(buf, binary.LittleEndian, uint16(phsize))          // e_phentsize
	binary.Write(buf, binary.LittleEndian, uint16(1))               // e_phnum
	binary.Write(buf, binary.LittleEndian, uint16(0))               // e_shentsize
	binary.Write(buf, binary.LittleEndian, uint16(0))               // e_shnum
	binary.Write(buf, binary.LittleEndian, uint16(0))               // e_shstrndx

	// Elf64_Phdr
	binary.Write(buf, binary.LittleEndian, uint32(1))              // p_type = PT_LOAD
	binary.Write(buf, binary.LittleEndian, uint32(1|4))            // p_flags = PF_X|PF_R
	binary.Write(buf, binary.LittleEndian, codeOff)                // p_offset
	binary.Write(buf, binary.LittleEndian, vaddr)                  // p_vaddr
	binary.Write(buf, binary.LittleEndian, vaddr)                  // p_paddr
	binary.Write(buf, binary.LittleEndian, uint64(len(code)))      // p_filesz
	binary.Write(buf, binary.LittleEndian, uint64(len(code)))      // p_memsz
	binary.Write(buf, binary.LittleEndian, uint64(0x1000))         // p_align

	buf.Write(code)
	return buf.Bytes()
}

func TestLoadMinimalELF(t *testing.T) {
	code := []byte{0x58, 0xc3} // pop rax; ret
	raw := buildMinimalELF64(t, code, 0x400000)
	r := bytes.NewReader(raw)

	a, it, err := Load(r, int64(len(raw)), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a != arch.X86_64 {
		t.Fatalf("expected X86_64, got %v", a)
	}
	if !it.Next() {
		t.Fatal("expected one segment")
	}
	seg := it.Segment()
	if seg.BaseAddr != 0x400000 {
		t.Errorf("unexpected base addr: 0x%x", seg.BaseAddr)
	}
	if !bytes.Equal(seg.Bytes, code) {
		t.Errorf("unexpected segment bytes: %x", seg.Bytes)
	}
	if it.Next() {
		t.Error("expected only one segment")
	}
	if err := it.Err(); err != nil {
		t.Errorf("unexpected iterator error: %v", err)
	}
}

func TestUnionIntervalsMergesTouching(t *testing.T) {
	// Two segments [0x1000, 0x1100) and [0x1100, 0x1200) should merge
	// into one interval because of the +1 widening trick.
	in := []interval{
		{lo: 0x1000, hi: 0x1101},
		{lo: 0x1100, hi: 0x1201},
	}
	out := unionIntervals(in)
	if len(out) != 1 {
		t.Fatalf("expected 1 merged interval, got %d: %+v", len(out), out)
	}
	if out[0].lo != 0x1000 || out[0].hi != 0x1201 {
		t.Errorf("unexpected merged interval: %+v", out[0])
	}
}

func TestUnionIntervalsKeepsDisjoint(t *testing.T) {
	in := []interval{
		{lo: 0x1000, hi: 0x1101},
		{lo: 0x2000, hi: 0x2101},
	}
	out := unionIntervals(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 disjoint intervals, got %d: %+v", len(out), out)
	}
}

func TestUnionIntervalsEmpty(t *testing.T) {
	if out := unionIntervals(nil); out != nil {
		t.Errorf("expected nil for empty input, got %+v", out)
	}
}
