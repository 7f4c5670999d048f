package runner

import (
	"context"
	"os"
	"strings"

	"github.com/oxidepm/oxidepm/internal/appspec"
)

// CmdRunner runs any shell command or binary verbatim. Grounded on
// oxidepm-runtime::cmd::CmdRunner.
type CmdRunner struct{}

func (CmdRunner) Prepare(_ context.Context, spec *appspec.AppSpec) (PrepareResult, error) {
	program := strings.Fields(spec.Command)
	if len(program) == 0 {
		return failure("Empty command"), nil
	}
	if _, ok := lookPath(program[0]); ok {
		return success("Found " + program[0] + " on PATH"), nil
	}
	if info, err := os.Stat(program[0]); err == nil && !info.IsDir() {
		return success("Using " + program[0]), nil
	}
	return failure("Command not found: %s", program[0]), nil
}

// Resolve returns spec.Command/Args unchanged. When Args is empty,
// process.Spec.BuildCommand performs its own shell-metacharacter detection
// on Command, so raw-command's plain-string form is preserved here rather
// than pre-split.
func (CmdRunner) Resolve(spec *appspec.AppSpec) (string, []string) {
	return spec.Command, spec.Args
}

func (CmdRunner) ModeName() string { return "cmd" }
