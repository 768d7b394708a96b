package x86

import (
	"testing"

	"github.com/mewmew/ropgadget/arch"
	"github.com/mewmew/ropgadget/disasm"
)

func decodeOne(t *testing.T, a arch.Architecture, addr uint64, data []byte) disasm.Instruction {
	t.Helper()
	d, err := newBackend(a)
	if err != nil || d == nil {
		t.Fatalf("newBackend(%v): %v", a, err)
	}
	it := d.Decode(addr, data)
	if !it.Next() {
		t.Fatal("expected at least one instruction")
	}
	return it.Inst()
}

func TestRet(t *testing.T) {
	inst := decodeOne(t, arch.X86_64, 0x400000, []byte{0xc3})
	if !inst.Ret() {
		t.Error("0xc3 should decode as ret")
	}
	if !inst.Bad() {
		t.Error("ret is also bad() per the independent-predicate design note")
	}
}

func TestNop(t *testing.T) {
	inst := decodeOne(t, arch.X86_64, 0x400000, []byte{0x90, 0xc3})
	if !inst.Nop() {
		t.Error("0x90 should decode as nop")
	}
}

func TestPopRax(t *testing.T) {
	inst := decodeOne(t, arch.X86_64, 0x400000, []byte{0x58, 0xc3})
	if inst.Ret() || inst.Bad() || inst.Nop() {
		t.Errorf("pop rax should be a plain instruction, got mnemonic %q", inst.Mnemonic())
	}
	if len(inst.Bytes()) != 1 {
		t.Errorf("pop rax should be 1 byte, got %d", len(inst.Bytes()))
	}
}

func TestJmpRegUncond(t *testing.T) {
	inst := decodeOne(t, arch.X86_64, 0x400000, []byte{0xff, 0xe0})
	if !inst.JmpRegUncond() {
		t.Errorf("ff e0 (jmp rax) should be jmp_reg_uncond, mnemonic %q", inst.Mnemonic())
	}
}

func TestCallReg(t *testing.T) {
	inst := decodeOne(t, arch.X86_64, 0x400000, []byte{0xff, 0xd0})
	if !inst.CallReg() {
		t.Errorf("ff d0 (call rax) should be call_reg, mnemonic %q", inst.Mnemonic())
	}
}

func TestBadByte(t *testing.T) {
	inst := decodeOne(t, arch.X86_64, 0x400000, []byte{0x0f, 0xff})
	if !inst.Bad() {
		t.Error("undecodable bytes should yield a bad instruction")
	}
	if len(inst.Bytes()) == 0 {
		t.Error("bad instruction must still carry non-empty bytes")
	}
}

func TestSameIgnoresAddr(t *testing.T) {
	a := decodeOne(t, arch.X86_64, 0x400000, []byte{0x58, 0xc3})
	b := decodeOne(t, arch.X86_64, 0x500000, []byte{0x58, 0xc3})
	if !a.Same(b) {
		t.Error("identical bytes at different addresses should be Same")
	}
	if a.Equal(b) {
		t.Error("identical bytes at different addresses should not be Equal")
	}
}
