// Package daemondir resolves the fixed directory layout spec §6 defines
// under ~/.oxidepm/, shared by cmd/oxidepmd and cmd/oxidepm so both always
// agree on where the socket, registry, resurrect snapshot, and logs live.
package daemondir

import (
	"os"
	"path/filepath"
)

// Dir returns ~/.oxidepm, creating it (owner-only) if absent.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".oxidepm")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// SocketPath returns ~/.oxidepm/daemon.sock.
func SocketPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "daemon.sock"), nil
}

// DBPath returns ~/.oxidepm/oxidepm.db.
func DBPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "oxidepm.db"), nil
}

// SavedPath returns ~/.oxidepm/saved.json.
func SavedPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "saved.json"), nil
}

// LogDir returns ~/.oxidepm/logs, creating it if absent.
func LogDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	logs := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logs, 0o700); err != nil {
		return "", err
	}
	return logs, nil
}
