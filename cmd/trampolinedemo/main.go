// Command trampolinedemo drives the trampoline dispatch core through the
// worked scenarios (IMT collision resolution, call-site patching,
// class-init idempotence, delegate thunk caching) against a minimal
// concrete Architecture. Compiled bodies, unbox trampolines and delegate
// thunks are addresses of real executable pages; vtable slot patches are
// stored in the core's VTable storage, and PLT and direct call-site
// patches are printed rather than written into any page.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/xyproto/env/v2"

	trampoline "github.com/xyproto/mtramp"
	"github.com/xyproto/mtramp/internal/codepatcher"
)

const versionString = "trampolinedemo 0.1.0"

func main() {
	var (
		verboseFlag  = flag.Bool("v", false, "trace trampoline decisions to stderr")
		scenarioFlag = flag.String("scenario", "all", "scenario to run: s1-s6 or all")
		versionFlag  = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Println(versionString)
		return
	}

	verbose := env.Bool("TRAMPOLINE_VERBOSE")
	if isFlagPassed("v") {
		verbose = *verboseFlag
	}

	scenario := env.StrOr("TRAMPOLINE_SCENARIO", "all")
	if isFlagPassed("scenario") {
		scenario = *scenarioFlag
	}

	d := newDemo(verbose)
	defer d.pages.Close()

	if err := d.run(scenario); err != nil {
		fmt.Fprintf(os.Stderr, "trampolinedemo: %v\n", err)
		os.Exit(1)
	}
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// pageSet tracks every executable page the demo allocates so it can free
// them all on exit.
type pageSet struct {
	mgr   *codepatcher.Manager
	pages []*codepatcher.Page
}

func newPageSet() *pageSet {
	return &pageSet{mgr: codepatcher.NewManager(50 * time.Millisecond)}
}

func (ps *pageSet) allocate(label string) *codepatcher.Page {
	page, err := ps.mgr.Allocate(64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trampolinedemo: allocate %s: %v\n", label, err)
		os.Exit(1)
	}
	// A single ret instruction (0xC3) stands in for a real method body;
	// the demo never actually calls into generated code, only patches
	// slots and PLT entries to point at page addresses.
	if err := page.Commit([]byte{0xC3}); err != nil {
		fmt.Fprintf(os.Stderr, "trampolinedemo: commit %s: %v\n", label, err)
		os.Exit(1)
	}
	ps.pages = append(ps.pages, page)
	return page
}

func (ps *pageSet) Close() {
	for _, p := range ps.pages {
		ps.mgr.Retire(p)
	}
}
