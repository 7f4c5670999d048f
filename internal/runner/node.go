package runner

import (
	"context"
	"os"
	"path/filepath"

	"github.com/oxidepm/oxidepm/internal/appspec"
)

var nodeScriptExts = map[string]bool{
	".js": true, ".mjs": true, ".cjs": true, ".ts": true, ".mts": true, ".cts": true,
}

// NodeRunner runs a JavaScript/TypeScript file with the system `node`
// binary. Grounded on oxidepm-runtime::node::NodeRunner.
type NodeRunner struct{}

func (NodeRunner) scriptPath(spec *appspec.AppSpec) string {
	if filepath.IsAbs(spec.Command) {
		return spec.Command
	}
	return filepath.Join(spec.Cwd, spec.Command)
}

func (r NodeRunner) Prepare(_ context.Context, spec *appspec.AppSpec) (PrepareResult, error) {
	nodePath, ok := lookPath("node")
	if !ok {
		return failure("Node.js not found in PATH. Please install Node.js."), nil
	}
	scriptPath := r.scriptPath(spec)
	if _, err := os.Stat(scriptPath); err != nil {
		return failure("Script not found: %s", scriptPath), nil
	}
	ext := filepath.Ext(scriptPath)
	if !nodeScriptExts[ext] {
		return failure("Invalid script extension: %s (expected .js, .mjs, .cjs, .ts)", ext), nil
	}
	return success("Using node at " + nodePath), nil
}

func (r NodeRunner) Resolve(spec *appspec.AppSpec) (string, []string) {
	args := append([]string{r.scriptPath(spec)}, spec.Args...)
	return "node", args
}

func (NodeRunner) ModeName() string { return "node" }
