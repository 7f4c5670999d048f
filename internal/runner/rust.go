package runner

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/oxidepm/oxidepm/internal/appspec"
)

// RustRunner compiles a single .rs file with rustc -O and runs the
// resulting binary. Grounded on oxidepm-runtime::rust::RustRunner.
type RustRunner struct{}

func (RustRunner) sourcePath(spec *appspec.AppSpec) string {
	if filepath.IsAbs(spec.Command) {
		return spec.Command
	}
	return filepath.Join(spec.Cwd, spec.Command)
}

func binaryName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (r RustRunner) binaryPath(spec *appspec.AppSpec) string {
	return filepath.Join(spec.Cwd, ".oxidepm", "bin", binaryName(r.sourcePath(spec)))
}

func (r RustRunner) Prepare(ctx context.Context, spec *appspec.AppSpec) (PrepareResult, error) {
	rustcPath, ok := lookPath("rustc")
	if !ok {
		return failure("rustc not found in PATH. Please install Rust."), nil
	}
	sourcePath := r.sourcePath(spec)
	if _, err := os.Stat(sourcePath); err != nil {
		return failure("Source file not found: %s", sourcePath), nil
	}
	if ext := filepath.Ext(sourcePath); ext != ".rs" {
		return failure("Invalid file extension: %s (expected .rs)", ext), nil
	}

	outputPath := r.binaryPath(spec)
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		return PrepareResult{}, err
	}

	cmd := exec.CommandContext(ctx, rustcPath, sourcePath, "-o", outputPath, "-O")
	cmd.Dir = spec.Cwd
	out, err := cmd.CombinedOutput()
	if err != nil {
		return failure("Compilation failed:\n%s", out), nil
	}
	return successWithBinary("Compiled "+filepath.Base(sourcePath)+" successfully", outputPath), nil
}

func (r RustRunner) Resolve(spec *appspec.AppSpec) (string, []string) {
	return r.binaryPath(spec), spec.Args
}

func (RustRunner) ModeName() string { return "rust" }
