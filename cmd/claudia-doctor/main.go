// Command claudia-doctor checks that the build environment's Go toolchain
// matches what the kernel was last verified against, by reading the
// go.mod/toolchain directives directly rather than shelling out to `go
// version` and string-matching its output.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/semver"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Printf("%s <path to go.mod>\n", os.Args[0])
		os.Exit(1)
	}
	modpath := os.Args[1]

	data, err := os.ReadFile(modpath)
	if err != nil {
		fmt.Printf("claudia-doctor: %v\n", err)
		os.Exit(1)
	}
	f, err := modfile.Parse(modpath, data, nil)
	if err != nil {
		fmt.Printf("claudia-doctor: parsing %s: %v\n", modpath, err)
		os.Exit(1)
	}
	if f.Go == nil {
		fmt.Println("claudia-doctor: go.mod has no go directive")
		os.Exit(1)
	}

	want := "go" + f.Go.Version
	if f.Toolchain != nil {
		want = f.Toolchain.Name
	}

	got, err := installedVersion()
	if err != nil {
		fmt.Printf("claudia-doctor: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("go.mod requires: %s\n", want)
	fmt.Printf("installed:       %s\n", got)

	wantSV, gotSV := "v"+strings.TrimPrefix(want, "go"), "v"+strings.TrimPrefix(got, "go")
	if !semver.IsValid(gotSV) || !semver.IsValid(wantSV) {
		fmt.Println("claudia-doctor: cannot compare malformed version strings, skipping check")
		return
	}
	if semver.Compare(gotSV, wantSV) < 0 {
		fmt.Println("claudia-doctor: installed toolchain is older than go.mod requires")
		os.Exit(1)
	}
	fmt.Println("claudia-doctor: OK")
}

// installedVersion runs `go env GOVERSION` rather than parsing `go
// version`'s free-form banner, since GOVERSION always prints a bare
// "go1.2x" token.
func installedVersion() (string, error) {
	out, err := exec.Command("go", "env", "GOVERSION").Output()
	if err != nil {
		return "", fmt.Errorf("running go env GOVERSION: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
