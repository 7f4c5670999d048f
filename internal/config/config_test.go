package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oxidepm/oxidepm/internal/appspec"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadSpecsTOMLMinimal(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "oxidepm.toml", `
[[apps]]
name = "web"
command = "node server.js"
`)
	specs, err := LoadSpecs(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	require.Equal(t, "web", specs[0].Name)
	require.Equal(t, "node server.js", specs[0].Command)
	require.Equal(t, appspec.ModeRawCommand, specs[0].Mode)
	require.Equal(t, 1, specs[0].Instances)
}

func TestLoadSpecsYAMLModeInference(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "oxidepm.yaml", `
apps:
  - name: api
    script: index.js
  - name: engine
    bin: target/release/engine
  - name: worker
    mode: npm
    script: start
`)
	specs, err := LoadSpecs(path)
	require.NoError(t, err)
	require.Len(t, specs, 3)

	require.Equal(t, appspec.ModeNodeScript, specs[0].Mode)
	require.Equal(t, "index.js", specs[0].Command)

	require.Equal(t, appspec.ModeCargoProject, specs[1].Mode)
	require.Equal(t, "target/release/engine", specs[1].Command)

	require.Equal(t, appspec.ModePackageScriptNPM, specs[2].Mode)
	require.Equal(t, "start", specs[2].Command)
}

func TestLoadSpecsJSONFullFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "oxidepm.json", `{
  "apps": [
    {
      "name": "web",
      "command": "sleep 100",
      "cwd": "sub",
      "env": {"A": "1"},
      "instances": 3,
      "port": 8080,
      "port_range": {"start": 9000, "end": 9010},
      "max_restarts": 5,
      "restart_delay_ms": 200,
      "no_autorestart": false,
      "kill_timeout_ms": 3000,
      "tags": ["backend", "web"],
      "health_check": {"http_url": "http://localhost:8080/health"},
      "hooks": {"on_start": "echo up"}
    }
  ]
}`)
	specs, err := LoadSpecs(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	s := specs[0]

	require.Equal(t, filepath.Join(dir, "sub"), s.Cwd)
	require.Equal(t, "1", s.Env["A"])
	require.Equal(t, 3, s.Instances)
	require.NotNil(t, s.Port)
	require.Equal(t, 8080, *s.Port)
	require.NotNil(t, s.PortRange)
	require.Equal(t, 9000, s.PortRange.Start)
	require.Equal(t, 5, s.RestartPolicy.MaxRestarts)
	require.True(t, s.RestartPolicy.AutoRestart)
	require.ElementsMatch(t, []string{"backend", "web"}, s.Tags)
	require.NotNil(t, s.HealthCheck)
	require.Equal(t, "http://localhost:8080/health", s.HealthCheck.HTTPURL)
	require.Equal(t, []int{200}, s.HealthCheck.ExpectedStatus)
	require.Equal(t, "echo up", s.Hooks.OnStart)
}

func TestLoadSpecsRejectsUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "oxidepm.ini", "[apps]\n")
	_, err := LoadSpecs(path)
	require.Error(t, err)
}

func TestLoadSpecsRejectsMissingName(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "oxidepm.toml", `
[[apps]]
command = "sleep 1"
`)
	_, err := LoadSpecs(path)
	require.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", `
# a comment
A=1
B="two words"
C='single quoted'

D=has=equals
`)
	env, err := LoadEnvFile(path)
	require.NoError(t, err)
	require.Equal(t, "1", env["A"])
	require.Equal(t, "two words", env["B"])
	require.Equal(t, "single quoted", env["C"])
	require.Equal(t, "has=equals", env["D"])
}

func TestLoadSpecsEnvFileMergedUnderInlineEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "A=from-file\nB=only-file\n")
	path := writeFile(t, dir, "oxidepm.toml", `
[[apps]]
name = "web"
command = "sleep 1"
env_file = ".env"
[apps.env]
A = "from-inline"
`)
	specs, err := LoadSpecs(path)
	require.NoError(t, err)
	require.Equal(t, "from-inline", specs[0].Env["A"])
	require.Equal(t, "only-file", specs[0].Env["B"])
}

func TestParseEnvFlags(t *testing.T) {
	env, err := ParseEnvFlags([]string{"A=1", "B=2"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"A": "1", "B": "2"}, env)

	_, err = ParseEnvFlags([]string{"NOEQUALS"})
	require.Error(t, err)
}
