package canon

import (
	"testing"

	"github.com/mewmew/ropgadget/arch"
	"github.com/mewmew/ropgadget/disasm"
	_ "github.com/mewmew/ropgadget/disasm/x86" // registers the x86asm backend
	"github.com/mewmew/ropgadget/gadget"
)

func mustX86(t *testing.T) disasm.Disassembler {
	t.Helper()
	d, err := disasm.Find(arch.X86_64)
	if err != nil {
		t.Fatalf("disasm.Find(X86_64): %v", err)
	}
	return d
}

// TestCanonicaliseDropsNonMaximal exercises the four-candidate scenario
// verbatim: [ret], [ret, pop rax], [ret, pop rbx], [ret, pop rax, xor
// eax, eax]. Only the two maximal tails should survive, in partition
// order.
func TestCanonicaliseDropsNonMaximal(t *testing.T) {
	d := mustX86(t)

	g1 := gadget.NewGadget(0x401000, []byte{0xc3}, d, 0)
	g2 := gadget.NewGadget(0x401002, []byte{0x58, 0xc3}, d, 1)
	g3 := gadget.NewGadget(0x401005, []byte{0x5b, 0xc3}, d, 1)
	g4 := gadget.NewGadget(0x401008, []byte{0x31, 0xc0, 0x58, 0xc3}, d, 3)

	out := Canonicalise([]gadget.Gadget{g1, g2, g3, g4})
	if len(out) != 2 {
		t.Fatalf("expected 2 canonical gadgets, got %d", len(out))
	}

	first := out[0].AsPrefix()
	if len(first) != 3 {
		t.Fatalf("expected first gadget to carry 3 instructions, got %d: %v", len(first), first)
	}
	second := out[1].AsPrefix()
	if len(second) != 2 {
		t.Fatalf("expected second gadget to carry 2 instructions, got %d: %v", len(second), second)
	}
}

func TestCanonicaliseEmpty(t *testing.T) {
	if out := Canonicalise(nil); out != nil {
		t.Errorf("expected nil for empty input, got %v", out)
	}
}

func TestCanonicaliseSingle(t *testing.T) {
	d := mustX86(t)
	g := gadget.NewGadget(0x401000, []byte{0xc3}, d, 0)
	out := Canonicalise([]gadget.Gadget{g})
	if len(out) != 1 {
		t.Fatalf("expected 1 gadget, got %d", len(out))
	}
}

func TestCanonicaliseIdempotentNoDuplicatePrefixes(t *testing.T) {
	d := mustX86(t)
	g2 := gadget.NewGadget(0x401002, []byte{0x58, 0xc3}, d, 1)
	g3 := gadget.NewGadget(0x401005, []byte{0x5b, 0xc3}, d, 1)

	out := Canonicalise([]gadget.Gadget{g2, g3})
	if len(out) != 2 {
		t.Fatalf("expected both distinct gadgets to survive, got %d", len(out))
	}
	seen := map[string]bool{}
	for _, g := range out {
		key := ""
		for _, m := range g.AsPrefix() {
			key += m + "|"
		}
		if seen[key] {
			t.Fatalf("duplicate AsPrefix() emitted: %v", g.AsPrefix())
		}
		seen[key] = true
	}
}
