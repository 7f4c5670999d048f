// Package runner implements the mode-dispatched Runner set: each Runner
// knows how to validate/build (Prepare) and resolve the concrete program and
// arguments (Resolve) for one AppSpec.Mode. The supervisor never inspects a
// Runner's internals beyond this interface — it treats the child purely as
// a pid plus stdout/stderr/wait/kill, per spec's Runner contract.
// Grounded on oxidepm-runtime::traits::Runner and its six mode-specific
// implementations (cmd.rs, node.rs, npm.rs, rust.rs, cargo.rs).
package runner

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/oxidepm/oxidepm/internal/appspec"
	"github.com/oxidepm/oxidepm/internal/detector"
	"github.com/oxidepm/oxidepm/internal/logstream"
	"github.com/oxidepm/oxidepm/internal/process"
)

// PrepareResult is the outcome of a Runner's validate/build step.
type PrepareResult struct {
	Success    bool
	Output     string
	BinaryPath string
}

func success(output string) PrepareResult              { return PrepareResult{Success: true, Output: output} }
func successWithBinary(output, path string) PrepareResult {
	return PrepareResult{Success: true, Output: output, BinaryPath: path}
}
func failure(format string, args ...any) PrepareResult {
	return PrepareResult{Success: false, Output: fmt.Sprintf(format, args...)}
}

// Runner is satisfied by each mode-specific implementation.
type Runner interface {
	// Prepare validates (and, for build modes, compiles) spec's target.
	Prepare(ctx context.Context, spec *appspec.AppSpec) (PrepareResult, error)
	// Resolve returns the actual program and argv to execute, after any
	// build step in Prepare has produced a binary. Called by Start.
	Resolve(spec *appspec.AppSpec) (program string, args []string)
	// ModeName identifies the runner, for logging and command_string-style display.
	ModeName() string
}

// Dispatch selects the Runner for spec.Mode.
func Dispatch(mode appspec.Mode) (Runner, error) {
	switch mode {
	case appspec.ModeRawCommand:
		return CmdRunner{}, nil
	case appspec.ModeNodeScript:
		return NodeRunner{}, nil
	case appspec.ModePackageScriptNPM:
		return NewNpmRunner("npm"), nil
	case appspec.ModePackageScriptPNPM:
		return NewNpmRunner("pnpm"), nil
	case appspec.ModePackageScriptYarn:
		return NewNpmRunner("yarn"), nil
	case appspec.ModeCargoProject:
		return CargoRunner{}, nil
	case appspec.ModeSingleFileRust:
		return RustRunner{}, nil
	default:
		return nil, fmt.Errorf("runner: unknown mode %q", mode)
	}
}

// lookPath reports whether name resolves on PATH, mirroring the Rust
// runners' use of the `which` crate.
func lookPath(name string) (string, bool) {
	p, err := exec.LookPath(name)
	if err != nil {
		return "", false
	}
	return p, true
}

// Start resolves spec's program/args via r, builds the child under envs
// (already merged via env.Env.MergeApp), and wires its stdout/stderr to
// ls via line-pumping goroutines. It returns the started *process.Process;
// the caller (Supervisor) owns it from here.
func Start(r Runner, spec *appspec.AppSpec, mergedEnv []string, pidFile string, ls *logstream.LogStream) (*process.Process, error) {
	program, args := r.Resolve(spec)
	pspec := process.Spec{
		Name:    spec.InstanceName(),
		Command: program,
		Args:    args,
		WorkDir: spec.Cwd,
		PIDFile: pidFile,
		Detectors: []detector.Detector{},
	}
	proc := process.New(pspec)

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd := proc.ConfigureCmd(mergedEnv, outW, errW)

	if err := proc.TryStart(cmd); err != nil {
		_ = outW.Close()
		_ = errW.Close()
		return nil, err
	}

	go logstream.PumpLines(outR, ls.Out)
	go logstream.PumpLines(errR, ls.Err)

	return proc, nil
}
