// Command kprofile symbolizes the pc values a kernel panic dump prints
// against the kernel ELF image, producing a pprof profile of where the
// hart was executing at panic time. Panic dumps only ever carry raw
// addresses (there is no unwinder running inside the kernel itself to
// resolve them), so the nearest-preceding-symbol lookup this tool does is
// the same technique gopher-os's userland post-mortem tooling uses against
// a freestanding kernel image.
package main

import (
	"bufio"
	"debug/elf"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/pprof/profile"
)

type symbol struct {
	name string
	addr uint64
}

func loadSymbols(kernelELF string) ([]symbol, error) {
	f, err := elf.Open(kernelELF)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", kernelELF, err)
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("reading symbols: %w", err)
	}

	out := make([]symbol, 0, len(syms))
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Value == 0 {
			continue
		}
		out = append(out, symbol{name: s.Name, addr: s.Value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].addr < out[j].addr })
	return out, nil
}

// resolve finds the function symbol with the greatest address <= pc: the
// nearest enclosing function, since no DWARF line table is guaranteed to
// survive into a stripped kernel image.
func resolve(syms []symbol, pc uint64) (string, uint64) {
	i := sort.Search(len(syms), func(i int) bool { return syms[i].addr > pc })
	if i == 0 {
		return "?", 0
	}
	s := syms[i-1]
	return s.name, pc - s.addr
}

func readPCs(path string) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pcs []uint64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "0x")
		pc, err := strconv.ParseUint(line, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing pc %q: %w", sc.Text(), err)
		}
		pcs = append(pcs, pc)
	}
	return pcs, sc.Err()
}

func main() {
	if len(os.Args) != 4 {
		fmt.Printf("%s <kernel elf> <panic pc dump> <output .pb.gz>\n", os.Args[0])
		os.Exit(1)
	}
	kernelELF, dumpPath, outPath := os.Args[1], os.Args[2], os.Args[3]

	syms, err := loadSymbols(kernelELF)
	if err != nil {
		fmt.Printf("kprofile: %v\n", err)
		os.Exit(1)
	}
	pcs, err := readPCs(dumpPath)
	if err != nil {
		fmt.Printf("kprofile: %v\n", err)
		os.Exit(1)
	}

	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		TimeNanos:  time.Unix(0, 0).UnixNano(),
	}

	funcsByName := map[string]*profile.Function{}
	nextFnID, nextLocID := uint64(1), uint64(1)

	for _, pc := range pcs {
		name, off := resolve(syms, pc)
		fn, ok := funcsByName[name]
		if !ok {
			fn = &profile.Function{ID: nextFnID, Name: name, SystemName: name}
			nextFnID++
			funcsByName[name] = fn
			prof.Function = append(prof.Function, fn)
		}
		loc := &profile.Location{
			ID:      nextLocID,
			Address: pc,
			Line:    []profile.Line{{Function: fn}},
		}
		nextLocID++
		prof.Location = append(prof.Location, loc)
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{1},
			Label:    map[string][]string{"offset": {fmt.Sprintf("+%#x", off)}},
		})
	}

	if err := prof.CheckValid(); err != nil {
		fmt.Printf("kprofile: built an invalid profile: %v\n", err)
		os.Exit(1)
	}

	out, err := os.Create(outPath)
	if err != nil {
		fmt.Printf("kprofile: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()
	if err := prof.Write(out); err != nil {
		fmt.Printf("kprofile: writing profile: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("kprofile: wrote %d samples to %s\n", len(prof.Sample), outPath)
}
