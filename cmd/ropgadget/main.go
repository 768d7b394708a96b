// The ropgadget tool locates ROP gadgets in an ELF executable: short
// instruction sequences ending in a return, a register-indirect jump,
// or a register call, printed in the order they are discovered.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/mewkiz/pkg/term"
	"github.com/mewmew/ropgadget/bin"
	"github.com/mewmew/ropgadget/config"
	_ "github.com/mewmew/ropgadget/disasm/arm" // registers the armasm backend
	_ "github.com/mewmew/ropgadget/disasm/x86" // registers the x86asm backend
	"github.com/mewmew/ropgadget/matcher"
	"github.com/mewmew/ropgadget/render"
	"github.com/mewmew/ropgadget/rlog"
	"github.com/mewmew/ropgadget/search"
)

// dbg is a logger which logs debug messages with a "ropgadget:" prefix
// to standard error. Silenced unless -v is given.
var dbg = log.New(io.Discard, term.MagentaBold("ropgadget:")+" ", 0)

func main() {
	var (
		depth      int
		verbose    bool
		mode       string
		configPath string
		pattern    string
		minAddr    = bin.Addr(0)
		maxAddr    = bin.Addr(^uint64(0))
	)
	flag.IntVar(&depth, "N", search.DefaultDepth, "backward search depth")
	flag.BoolVar(&verbose, "v", false, "verbose debug output")
	flag.StringVar(&mode, "mode", "ret", "gadget terminator: ret, jmp, call or regex")
	flag.StringVar(&pattern, "re", "", "mnemonic regex, used when -mode=regex")
	flag.StringVar(&configPath, "config", "", "optional JSON config file")
	flag.Var(&minAddr, "min-addr", "lower bound of the address range to search")
	flag.Var(&maxAddr, "max-addr", "upper bound of the address range to search")
	flag.Parse()

	if configPath != "" {
		cfg, err := config.Load(configPath, func(format string, args ...interface{}) {
			rlog.Warn.Printf(format, args...)
		})
		if err != nil {
			log.Fatalf("%+v", err)
		}
		// Flags given explicitly on the command line take precedence over
		// the config file.
		explicit := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		if cfg.BackwardSearchDepth > 0 && !explicit["N"] {
			depth = cfg.BackwardSearchDepth
		}
		if cfg.Verbose && !explicit["v"] {
			verbose = true
		}
	}
	if verbose {
		rlog.SetVerbose(true)
		dbg.SetOutput(os.Stderr)
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ropgadget [flags] <elf-file>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	path := flag.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		log.Fatalf("%+v", err)
	}

	m, err := matcherFor(mode, pattern)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	dbg.Printf("searching %q (depth=%d, mode=%s, range=[%v, %v])", path, depth, mode, minAddr, maxAddr)
	it, err := search.SearchElfInRange(f, info.Size(), depth, m, uint64(minAddr), uint64(maxAddr))
	if err != nil {
		log.Fatalf("%+v", err)
	}
	for it.Next() {
		fmt.Println(render.Gadget(it.Gadget()))
		fmt.Println()
	}
	if err := it.Err(); err != nil {
		log.Fatalf("%+v", err)
	}
}

// matcherFor resolves the -mode flag (and, for "regex", the -re
// pattern) to a matcher.Matcher.
func matcherFor(mode, pattern string) (matcher.Matcher, error) {
	switch mode {
	case "ret":
		return matcher.NewRets(), nil
	case "jmp":
		return matcher.NewJmpRegUncond(), nil
	case "call":
		return matcher.NewCallReg(), nil
	case "regex":
		return matcher.NewRegex(pattern)
	default:
		return nil, fmt.Errorf("unknown -mode %q; want ret, jmp, call or regex", mode)
	}
}
