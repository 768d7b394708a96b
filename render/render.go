// Package render formats decoded instructions and gadgets as the text
// external consumers see, per the gadget rendering rules: one line per
// instruction, address field width keyed off the architecture's
// bitness, and RIP/EIP-relative targets resolved to an absolute
// address when recognised in the mnemonic rendering.
package render

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mewmew/ropgadget/disasm"
	"github.com/mewmew/ropgadget/gadget"
)

// ripRelRE recognises the "[ (R|E)IP + 0x<hex> ]" pattern in a rendered
// mnemonic, ported from the rendering rules verbatim.
var ripRelRE = regexp.MustCompile(`\[\s*[RE]IP\s*\+\s*0x([0-9a-fA-F]+)\s*\]`)

// Instruction renders one decoded instruction as
// "  <addr-hex-padded>  <bytes-hex>  <mnemonic>[ ; <target>]".
func Instruction(inst disasm.Instruction) string {
	addrStr := fmtAddr(inst.Addr(), inst.Arch().Is64Bit())
	bytesHex := hex.EncodeToString(inst.Bytes())
	mnem := inst.Mnemonic()

	line := fmt.Sprintf("  %-18s  %-16s  %s", addrStr, bytesHex, mnem)
	if target, ok := resolveRipRelative(inst, mnem); ok {
		line += fmt.Sprintf(" ; 0x%x", target)
	}
	return line
}

// resolveRipRelative reports the absolute target of a RIP/EIP-relative
// operand recognised in mnem, if any: inst.Addr() + len(inst.Bytes()) +
// offset.
func resolveRipRelative(inst disasm.Instruction, mnem string) (uint64, bool) {
	m := ripRelRE.FindStringSubmatch(mnem)
	if m == nil {
		return 0, false
	}
	offset, err := strconv.ParseUint(m[1], 16, 64)
	if err != nil {
		return 0, false
	}
	return inst.Addr() + uint64(len(inst.Bytes())) + offset, true
}

// gadgetRule is the separator rule between a gadget's suffix and its
// terminator.
const gadgetRule = "____"

// Gadget renders a gadget as its suffix instructions, a separator rule,
// then its terminator instruction(s).
func Gadget(g gadget.Gadget) string {
	var lines []string

	suf := g.Suffix()
	for i := 0; i < suf.Len(); i++ {
		lines = append(lines, Instruction(suf.At(i)))
	}
	lines = append(lines, "    "+gadgetRule)

	term := g.Parent()
	for i := 0; i < term.Len(); i++ {
		lines = append(lines, Instruction(term.At(i)))
	}

	return strings.Join(lines, "\n")
}

func fmtAddr(addr uint64, is64 bool) string {
	if is64 {
		return fmt.Sprintf("0x%016x", addr)
	}
	return fmt.Sprintf("0x%08x", addr)
}
