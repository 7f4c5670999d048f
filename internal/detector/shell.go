package detector

import "os/exec"

// getShellCommand returns a shell invocation of script.
func getShellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("/bin/sh", "-c", script)
}

// getTrueCommand returns a command that always succeeds, used for an empty detector command.
func getTrueCommand() *exec.Cmd {
	// #nosec G204
	return exec.Command("/bin/true")
}
