package runner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/oxidepm/oxidepm/internal/appspec"
)

// NpmRunner runs a package.json script via one of npm/pnpm/yarn.
// Grounded on oxidepm-runtime::npm::NpmRunner, generalized over the tool
// name rather than the Rust version's three near-duplicate call sites.
type NpmRunner struct {
	Tool string
}

func NewNpmRunner(tool string) NpmRunner { return NpmRunner{Tool: tool} }

type packageJSON struct {
	Scripts map[string]string `json:"scripts"`
}

func (r NpmRunner) Prepare(_ context.Context, spec *appspec.AppSpec) (PrepareResult, error) {
	toolPath, ok := lookPath(r.Tool)
	if !ok {
		return failure("%s not found in PATH. Please install %s.", r.Tool, r.Tool), nil
	}
	manifestPath := filepath.Join(spec.Cwd, "package.json")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return failure("package.json not found in %s", spec.Cwd), nil
	}
	var manifest packageJSON
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return failure("Invalid package.json: %s", err), nil
	}
	if _, ok := manifest.Scripts[spec.Command]; !ok {
		return failure("Script '%s' not found in package.json scripts", spec.Command), nil
	}
	return success("Using " + r.Tool + " at " + toolPath + " to run script '" + spec.Command + "'"), nil
}

func (r NpmRunner) Resolve(spec *appspec.AppSpec) (string, []string) {
	args := append([]string{"run", spec.Command}, spec.Args...)
	return r.Tool, args
}

func (r NpmRunner) ModeName() string { return r.Tool }
