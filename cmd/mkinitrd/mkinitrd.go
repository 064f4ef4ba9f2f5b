// Command mkinitrd builds the initrd image the kernel embeds at link time:
// a flat sequence of {path-length, path, data-length, data} records, one
// per manifest entry, read back by kernel.Kmain's unpackInitrd at boot and
// installed into the in-memory VFS.
//
// This replaces an earlier disk-image builder (mkfs), which built a bootable disk image for
// SimpleFS (a log, a superblock, inode and data block regions); Claudia's
// filesystem is a RAM-resident node pool, not a format on disk, so there is
// no log to size and no inode region to lay out -- mkinitrd only needs to
// read a manifest, validate each entry, and concatenate records.
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// KernelABI is the syscall-table version this build of the kernel
// implements. mkinitrd refuses to pack a userland
// binary whose manifest entry declares an incompatible minimum.
const KernelABI = "1.0.0"

// Manifest lists the embedded programs and devices a build wants baked
// into the initrd image, and their target VFS paths.
type Manifest struct {
	Files []FileEntry `yaml:"files"`
}

// FileEntry names one host file, its installed path, and (optionally) the
// minimum kernel ABI version it requires.
type FileEntry struct {
	Path   string `yaml:"path"`
	Src    string `yaml:"src"`
	MinABI string `yaml:"min_abi"`
}

type record struct {
	name string
	data []byte
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %q: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %q: %w", path, err)
	}
	return &m, nil
}

// buildRecords reads and ABI-checks every manifest entry concurrently
// (packing entries are independent of each other, unlike writing the
// single output file afterward, which must stay sequential).
func buildRecords(manifestDir string, m *Manifest) ([]record, error) {
	kernelVer, err := semver.NewVersion(KernelABI)
	if err != nil {
		return nil, fmt.Errorf("invalid KernelABI constant %q: %w", KernelABI, err)
	}

	records := make([]record, len(m.Files))
	var g errgroup.Group
	for i, entry := range m.Files {
		i, entry := i, entry
		g.Go(func() error {
			if entry.MinABI != "" {
				c, err := semver.NewConstraint(entry.MinABI)
				if err != nil {
					return fmt.Errorf("%s: invalid min_abi %q: %w", entry.Path, entry.MinABI, err)
				}
				if !c.Check(kernelVer) {
					return fmt.Errorf("%s: requires kernel ABI %s, this build is %s", entry.Path, entry.MinABI, KernelABI)
				}
			}
			src := entry.Src
			if !filepath.IsAbs(src) {
				src = filepath.Join(manifestDir, src)
			}
			data, err := os.ReadFile(src)
			if err != nil {
				return fmt.Errorf("reading %q: %w", src, err)
			}
			records[i] = record{name: filepath.ToSlash(entry.Path), data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func writeField(out io.Writer, b []byte) error {
	var lenbuf [4]byte
	binary.BigEndian.PutUint32(lenbuf[:], uint32(len(b)))
	if _, err := out.Write(lenbuf[:]); err != nil {
		return err
	}
	_, err := out.Write(b)
	return err
}

func main() {
	if len(os.Args) != 3 {
		fmt.Printf("usage: %s <manifest.yaml> <output image>\n", os.Args[0])
		os.Exit(1)
	}
	manifestPath, outPath := os.Args[1], os.Args[2]

	m, err := loadManifest(manifestPath)
	if err != nil {
		fmt.Printf("mkinitrd: %v\n", err)
		os.Exit(1)
	}
	records, err := buildRecords(filepath.Dir(manifestPath), m)
	if err != nil {
		fmt.Printf("mkinitrd: %v\n", err)
		os.Exit(1)
	}

	out, err := os.Create(outPath)
	if err != nil {
		fmt.Printf("mkinitrd: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	pb := progressbar.Default(int64(len(records)), "packing")
	defer pb.Close()
	for _, r := range records {
		if err := writeField(out, []byte(r.name)); err != nil {
			fmt.Printf("mkinitrd: writing %q: %v\n", r.name, err)
			os.Exit(1)
		}
		if err := writeField(out, r.data); err != nil {
			fmt.Printf("mkinitrd: writing %q: %v\n", r.name, err)
			os.Exit(1)
		}
		pb.Add(1)
	}
}
