// Package config loads optional on-disk overrides for the CLI's
// defaults, layered underneath whatever the command line sets
// explicitly.
package config

import (
	"github.com/mewkiz/pkg/jsonutil"
	"github.com/mewkiz/pkg/osutil"
	"github.com/pkg/errors"
)

// Config is the set of values an operator may pin in a JSON file rather
// than pass as flags every run.
type Config struct {
	// BackwardSearchDepth overrides the default backward-search depth N.
	BackwardSearchDepth int `json:"backward_search_depth"`
	// BackendRank maps a disassembler backend name to a registry rank,
	// e.g. {"x86asm": 200}. It is parsed from the file but not applied:
	// the ropgadget command does not pass it to the disassembler
	// registry, so backends keep the ranks they registered with.
	BackendRank map[string]int `json:"backend_rank"`
	// Verbose enables debug logging.
	Verbose bool `json:"verbose"`
}

// Load parses path as JSON into a Config. A missing file is not an
// error: it warns and returns the zero Config.
func Load(path string, warnf func(format string, args ...interface{})) (Config, error) {
	var cfg Config
	if !osutil.Exists(path) {
		if warnf != nil {
			warnf("unable to locate config file %q", path)
		}
		return cfg, nil
	}
	if err := jsonutil.ParseFile(path, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config file %q", path)
	}
	return cfg, nil
}
