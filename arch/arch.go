// Package arch names the instruction-set architectures understood by the
// rest of the gadget-finding pipeline and maps ELF machine tags onto them.
package arch

import (
	"debug/elf"
	"strings"

	"github.com/pkg/errors"
)

// Architecture is a closed set of instruction-set architecture tags. It is
// used only as a routing key between an ELF file's machine field and the
// disassembler backend registry; it carries no decoding logic of its own.
type Architecture int

// Supported architectures.
const (
	X86 Architecture = iota
	X86_64
	ARM
	Thumb1
	Thumb2
	MIPS
)

// all lists every supported architecture, in canonical lookup order.
var all = []Architecture{X86, X86_64, ARM, Thumb1, Thumb2, MIPS}

// String returns the canonical name of the architecture.
func (a Architecture) String() string {
	switch a {
	case X86:
		return "x86"
	case X86_64:
		return "x86-64"
	case ARM:
		return "arm"
	case Thumb1:
		return "thumb"
	case Thumb2:
		return "thumb2"
	case MIPS:
		return "mips"
	default:
		return "unknown"
	}
}

// Is64Bit reports whether addresses of this architecture should be rendered
// at 64-bit width (16 hex digits) rather than 32-bit width (8 hex digits),
// per the gadget rendering rules.
func (a Architecture) Is64Bit() bool {
	return a == X86_64
}

// ErrUnknownElfArch is returned by FromElfMachine when the given tag does
// not map to a supported architecture.
var ErrUnknownElfArch = errors.New("unknown elf architecture")

// FromElfMachine normalises an ELF machine tag to a supported
// Architecture. It special-cases the loose tags historically emitted by
// disassembler libraries ("x64", "x86", "ARM") and otherwise exact-matches
// against the architecture registry's canonical names.
func FromElfMachine(tag string) (Architecture, error) {
	ma := strings.TrimSpace(tag)
	switch ma {
	case "x64":
		return X86_64, nil
	case "x86":
		return X86, nil
	case "ARM":
		return ARM, nil
	}
	for _, a := range all {
		if a.String() == ma {
			return a, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownElfArch, "unknown elf arch %q", tag)
}

// FromElfMachineConst maps a debug/elf.Machine constant directly to an
// Architecture, for callers (elfload) that already hold a parsed ELF
// header rather than a loose string tag.
func FromElfMachineConst(m elf.Machine) (Architecture, error) {
	switch m {
	case elf.EM_386:
		return X86, nil
	case elf.EM_X86_64:
		return X86_64, nil
	case elf.EM_ARM:
		return ARM, nil
	case elf.EM_MIPS:
		return MIPS, nil
	default:
		return 0, errors.Wrapf(ErrUnknownElfArch, "unknown elf machine %v", m)
	}
}
