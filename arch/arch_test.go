package arch

import (
	"debug/elf"
	"testing"
)

func TestFromElfMachine(t *testing.T) {
	cases := []struct {
		tag  string
		want Architecture
	}{
		{"x64", X86_64},
		{"x86", X86},
		{"ARM", ARM},
		{"thumb", Thumb1},
		{"thumb2", Thumb2},
		{"mips", MIPS},
	}
	for _, c := range cases {
		got, err := FromElfMachine(c.tag)
		if err != nil {
			t.Fatalf("FromElfMachine(%q): unexpected error: %v", c.tag, err)
		}
		if got != c.want {
			t.Errorf("FromElfMachine(%q) = %v, want %v", c.tag, got, c.want)
		}
	}
}

func TestFromElfMachineUnknown(t *testing.T) {
	if _, err := FromElfMachine("sparc"); err == nil {
		t.Fatal("expected error for unknown architecture")
	}
}

func TestFromElfMachineConst(t *testing.T) {
	cases := []struct {
		m    elf.Machine
		want Architecture
	}{
		{elf.EM_386, X86},
		{elf.EM_X86_64, X86_64},
		{elf.EM_ARM, ARM},
	}
	for _, c := range cases {
		got, err := FromElfMachineConst(c.m)
		if err != nil {
			t.Fatalf("FromElfMachineConst(%v): unexpected error: %v", c.m, err)
		}
		if got != c.want {
			t.Errorf("FromElfMachineConst(%v) = %v, want %v", c.m, got, c.want)
		}
	}
}

func TestIs64Bit(t *testing.T) {
	if !X86_64.Is64Bit() {
		t.Error("X86_64 should be 64-bit")
	}
	if X86.Is64Bit() {
		t.Error("X86 should not be 64-bit")
	}
}
