package runner

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/oxidepm/oxidepm/internal/appspec"
)

// CargoRunner builds a Cargo project in release mode and runs its binary.
// Grounded on oxidepm-runtime::cargo::CargoRunner.
type CargoRunner struct{}

// findBinaryName mirrors find_binary_name: an explicit, non-placeholder
// spec.Command wins; otherwise the package name is scraped out of
// Cargo.toml's `[package] name = "..."` line; otherwise the cwd's base name.
func findBinaryName(cwd, hint string) (string, error) {
	if hint != "" && hint != "." && hint != "./" {
		return hint, nil
	}
	if f, err := os.Open(filepath.Join(cwd, "Cargo.toml")); err == nil {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if strings.HasPrefix(line, "name") {
				if idx := strings.IndexByte(line, '='); idx >= 0 {
					name := strings.TrimSpace(line[idx+1:])
					name = strings.Trim(name, `"'`)
					return name, nil
				}
			}
		}
	}
	if base := filepath.Base(cwd); base != "" && base != "." && base != string(filepath.Separator) {
		return base, nil
	}
	return "", fmt.Errorf("cargo: could not determine binary name")
}

func (CargoRunner) binaryPath(spec *appspec.AppSpec) (string, error) {
	name, err := findBinaryName(spec.Cwd, spec.Command)
	if err != nil {
		return "", err
	}
	return filepath.Join(spec.Cwd, "target", "release", name), nil
}

func (r CargoRunner) Prepare(ctx context.Context, spec *appspec.AppSpec) (PrepareResult, error) {
	cargoPath, ok := lookPath("cargo")
	if !ok {
		return failure("Cargo not found in PATH. Please install Rust."), nil
	}
	if _, err := os.Stat(filepath.Join(spec.Cwd, "Cargo.toml")); err != nil {
		return failure("Cargo.toml not found in %s", spec.Cwd), nil
	}

	cmd := exec.CommandContext(ctx, cargoPath, "build", "--release")
	cmd.Dir = spec.Cwd
	out, err := cmd.CombinedOutput()
	if err != nil {
		return failure("Build failed:\n%s", out), nil
	}

	binaryPath, err := r.binaryPath(spec)
	if err != nil {
		return PrepareResult{}, err
	}
	if _, statErr := os.Stat(binaryPath); statErr != nil {
		return failure("Binary not found at %s", binaryPath), nil
	}
	return successWithBinary(fmt.Sprintf("Build successful\n%s", out), binaryPath), nil
}

func (r CargoRunner) Resolve(spec *appspec.AppSpec) (string, []string) {
	binaryPath, err := r.binaryPath(spec)
	if err != nil {
		return spec.Command, spec.Args
	}
	return binaryPath, spec.Args
}

func (CargoRunner) ModeName() string { return "cargo" }
