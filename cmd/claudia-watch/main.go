// Command claudia-watch watches the source tree backing an initrd manifest
// and re-invokes mkinitrd plus a QEMU relaunch on every change, the
// project's edit-run-debug loop.
package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Printf("%s <manifest.yaml> <initrd image path> <qemu launch script>\n", os.Args[0])
		os.Exit(1)
	}
	manifest, initrd, qemuScript := os.Args[1], os.Args[2], os.Args[3]
	srcdir := filepath.Dir(manifest)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Fatalf("claudia-watch: %v", err)
	}
	defer w.Close()

	if err := addTree(w, srcdir); err != nil {
		log.Fatalf("claudia-watch: %v", err)
	}

	rebuild(manifest, initrd, qemuScript)

	// debounce: a save in an editor fires several events in quick
	// succession, so coalesce bursts rather than rebuilding per-event.
	var pending bool
	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			debounce.Reset(200 * time.Millisecond)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Printf("claudia-watch: watch error: %v", err)
		case <-debounce.C:
			if pending {
				pending = false
				rebuild(manifest, initrd, qemuScript)
			}
		}
	}
}

// addTree registers every directory under root with w: fsnotify watches
// are non-recursive, so each one needs an explicit Add call.
func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func rebuild(manifest, initrd, qemuScript string) {
	log.Printf("claudia-watch: rebuilding %s", initrd)
	mk := exec.Command("mkinitrd", manifest, initrd)
	mk.Stdout, mk.Stderr = os.Stdout, os.Stderr
	if err := mk.Run(); err != nil {
		log.Printf("claudia-watch: mkinitrd failed: %v", err)
		return
	}
	qemu := exec.Command(qemuScript, initrd)
	qemu.Stdout, qemu.Stderr = os.Stdout, os.Stderr
	if err := qemu.Run(); err != nil {
		log.Printf("claudia-watch: qemu relaunch failed: %v", err)
	}
}
