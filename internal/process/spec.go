package process

import (
	"os/exec"
	"strings"

	"github.com/oxidepm/oxidepm/internal/detector"
)

// Spec is the narrow, OS-level description of a child process to spawn.
// It is built by a Runner from the richer AppSpec; it knows nothing about
// clustering, health checks, or restart policy — those are the
// supervisor's concern.
type Spec struct {
	Name      string
	Command   string
	Args      []string
	WorkDir   string
	Env       []string
	PIDFile   string
	Detectors []detector.Detector
}

// BuildCommand constructs an *exec.Cmd for the spec.
//
// When Args is non-empty, Command is treated as the literal executable name
// (or path) and Args are passed through verbatim — no shell is invoked. This
// is the common case: AppSpec.command/AppSpec.args arrive pre-split.
//
// When Args is empty, Command is treated as a single command line that may
// need shell interpretation (raw-command mode given as one string). It
// avoids invoking a shell unless metacharacters are present, and it
// respects an already-explicit "sh -c ..."/"/bin/sh -c ..." prefix instead
// of double-wrapping it.
func (s *Spec) BuildCommand() *exec.Cmd {
	if len(s.Args) > 0 {
		// #nosec G204 -- Command/Args come from a validated AppSpec, not raw shell input.
		return exec.Command(s.Command, s.Args...)
	}

	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		return getTrueCommand()
	}
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		return getShellCommand(afterC)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return getShellCommand(cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>" at the
// start of cmdStr, returning (shellPath, afterCArg, true) when matched. It preserves
// the substring after "-c " verbatim to avoid breaking quoting.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}
