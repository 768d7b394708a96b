// Package bin provides a uniform virtual-address value type for
// command-line flags and JSON config fields: an address that may be
// specified in hexadecimal or decimal notation. It is 64 bits wide so it
// can name any address a 64-bit ELF executable's program headers produce.
package bin

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Addr is a virtual address that may be specified in hexadecimal
// notation. It implements flag.Value and encoding.TextUnmarshaler, so
// it can be bound directly to a CLI flag or a JSON config field.
type Addr uint64

// String returns the hexadecimal string representation of v.
func (v Addr) String() string {
	return fmt.Sprintf("0x%016x", uint64(v))
}

// Set sets v to the numeric value represented by s.
func (v *Addr) Set(s string) error {
	x, err := parseUint64(s)
	if err != nil {
		return errors.WithStack(err)
	}
	*v = Addr(x)
	return nil
}

// UnmarshalText unmarshals the text into v.
func (v *Addr) UnmarshalText(text []byte) error {
	return v.Set(string(text))
}

// MarshalText returns the textual representation of v.
func (v Addr) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Addrs implements sort.Interface, sorting addresses in ascending order.
type Addrs []Addr

func (as Addrs) Len() int           { return len(as) }
func (as Addrs) Swap(i, j int)      { as[i], as[j] = as[j], as[i] }
func (as Addrs) Less(i, j int) bool { return as[i] < as[j] }

var _ sort.Interface = Addrs(nil)

// parseUint64 interprets s in base 10, or base 16 when prefixed with
// "0x"/"0X", and returns the corresponding value.
func parseUint64(s string) (uint64, error) {
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[len("0x"):]
		base = 16
	}
	x, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return x, nil
}
