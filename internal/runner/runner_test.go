package runner

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oxidepm/oxidepm/internal/appspec"
)

func TestDispatchKnownModes(t *testing.T) {
	for _, m := range []appspec.Mode{
		appspec.ModeRawCommand, appspec.ModeNodeScript,
		appspec.ModePackageScriptNPM, appspec.ModePackageScriptPNPM, appspec.ModePackageScriptYarn,
		appspec.ModeCargoProject, appspec.ModeSingleFileRust,
	} {
		r, err := Dispatch(m)
		require.NoError(t, err)
		require.NotEmpty(t, r.ModeName())
	}
}

func TestDispatchUnknownMode(t *testing.T) {
	_, err := Dispatch(appspec.Mode("bogus"))
	require.Error(t, err)
}

func TestCmdRunnerPrepare(t *testing.T) {
	ctx := context.Background()
	r := CmdRunner{}

	ok, err := r.Prepare(ctx, &appspec.AppSpec{Command: "sleep", Args: []string{"1"}})
	require.NoError(t, err)
	require.True(t, ok.Success)

	bad, err := r.Prepare(ctx, &appspec.AppSpec{Command: "nonexistent_command_12345"})
	require.NoError(t, err)
	require.False(t, bad.Success)
}

func TestCmdRunnerResolvePassesArgsThrough(t *testing.T) {
	r := CmdRunner{}
	program, args := r.Resolve(&appspec.AppSpec{Command: "sleep", Args: []string{"1"}})
	require.Equal(t, "sleep", program)
	require.Equal(t, []string{"1"}, args)
}

func TestNodeRunnerPrepareMissingScript(t *testing.T) {
	if _, err := exec.LookPath("node"); err != nil {
		t.Skip("node not installed")
	}
	dir := t.TempDir()
	r := NodeRunner{}
	res, err := r.Prepare(context.Background(), &appspec.AppSpec{Command: "nonexistent.js", Cwd: dir})
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestNodeRunnerPrepareValidScript(t *testing.T) {
	if _, err := exec.LookPath("node"); err != nil {
		t.Skip("node not installed")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log('hi')"), 0o644))
	r := NodeRunner{}
	res, err := r.Prepare(context.Background(), &appspec.AppSpec{Command: "app.js", Cwd: dir})
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestNpmRunnerPrepareNoPackageJSON(t *testing.T) {
	if _, err := exec.LookPath("npm"); err != nil {
		t.Skip("npm not installed")
	}
	dir := t.TempDir()
	r := NewNpmRunner("npm")
	res, err := r.Prepare(context.Background(), &appspec.AppSpec{Command: "start", Cwd: dir})
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestNpmRunnerPrepareMissingScript(t *testing.T) {
	if _, err := exec.LookPath("npm"); err != nil {
		t.Skip("npm not installed")
	}
	dir := t.TempDir()
	writePackageJSON(t, dir, map[string]string{"dev": "echo dev"})
	r := NewNpmRunner("npm")
	res, err := r.Prepare(context.Background(), &appspec.AppSpec{Command: "start", Cwd: dir})
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestNpmRunnerPrepareValidScript(t *testing.T) {
	if _, err := exec.LookPath("npm"); err != nil {
		t.Skip("npm not installed")
	}
	dir := t.TempDir()
	writePackageJSON(t, dir, map[string]string{"start": "node index.js"})
	r := NewNpmRunner("npm")
	res, err := r.Prepare(context.Background(), &appspec.AppSpec{Command: "start", Cwd: dir})
	require.NoError(t, err)
	require.True(t, res.Success)
}

func writePackageJSON(t *testing.T, dir string, scripts map[string]string) {
	t.Helper()
	manifest := map[string]any{"name": "test", "version": "1.0.0", "scripts": scripts}
	raw, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), raw, 0o644))
}

func TestRustRunnerPrepareMissingFile(t *testing.T) {
	dir := t.TempDir()
	r := RustRunner{}
	res, err := r.Prepare(context.Background(), &appspec.AppSpec{Command: "nonexistent.rs", Cwd: dir})
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestRustRunnerPrepareWrongExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.txt"), []byte("not rust"), 0o644))
	r := RustRunner{}
	res, err := r.Prepare(context.Background(), &appspec.AppSpec{Command: "app.txt", Cwd: dir})
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestCargoRunnerPrepareNoCargoToml(t *testing.T) {
	dir := t.TempDir()
	r := CargoRunner{}
	res, err := r.Prepare(context.Background(), &appspec.AppSpec{Command: "myapp", Cwd: dir})
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestFindBinaryNameWithHint(t *testing.T) {
	dir := t.TempDir()
	name, err := findBinaryName(dir, "myapp")
	require.NoError(t, err)
	require.Equal(t, "myapp", name)
}

func TestFindBinaryNameFromCargoToml(t *testing.T) {
	dir := t.TempDir()
	toml := "[package]\nname = \"test-app\"\nversion = \"0.1.0\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte(toml), 0o644))
	name, err := findBinaryName(dir, "")
	require.NoError(t, err)
	require.Equal(t, "test-app", name)
}
