package render

import (
	"strings"
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

func TestInstructionAddrWidth(t *testing.T) {
	d := mustX86(t)
	seq := gadget.NewInstSeq(0x400000, []byte{0xc3}, d)
	line := Instruction(seq.At(0))
	if !strings.Contains(line, "0x0000000000400000") {
		t.Errorf("expected 16-digit address for x86-64, got: %q", line)
	}
}

func TestGadgetRendersSuffixRuleTerminator(t *testing.T) {
	d := mustX86(t)
	g := gadget.NewGadget(0x400000, []byte{0x58, 0xc3}, d, 1) // pop rax; ret
	text := Gadget(g)
	lines := strings.Split(text, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines (suffix, rule, terminator), got %d: %q", len(lines), text)
	}
	if !strings.Contains(lines[1], gadgetRule) {
		t.Errorf("expected separator rule on middle line, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "c3") {
		t.Errorf("expected terminator bytes on last line, got %q", lines[2])
	}
}

func TestResolveRipRelative(t *testing.T) {
	d := mustX86(t)
	seq := gadget.NewInstSeq(0x400000, []byte{0xc3}, d)
	inst := seq.At(0)
	if _, ok := resolveRipRelative(inst, "mov rax, [ RIP + 0x10 ]"); !ok {
		t.Error("expected rip-relative pattern to be recognised")
	}
	if _, ok := resolveRipRelative(inst, "ret"); ok {
		t.Error("expected ret mnemonic to have no rip-relative target")
	}
}
