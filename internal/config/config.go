// Package config loads the declarative config file and env-file formats
// spec §6 defines, consumed by the CLI (not the supervisor directly) to
// build the AppSpecs it hands to the daemon over IPC.
//
// Grounded on original_source/crates/oxidepm-core/src/config.rs's
// ConfigFile/AppConfig (TOML/YAML/JSON-by-extension, one "apps" list, a
// per-field "...Config" shape converted via into_spec/into_health_check/
// into_hooks) and on the teacher's internal/config/config.go for the Go
// idiom: viper.SetConfigFile + a small mapstructure-based decodeTo[T]
// helper rather than three hand-rolled per-format parsers.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/oxidepm/oxidepm/internal/apperr"
	"github.com/oxidepm/oxidepm/internal/appspec"
)

// HealthCheckConfig is the config-file shape of appspec.HealthCheck.
// Grounded on config.rs's HealthCheckConfig.
type HealthCheckConfig struct {
	HTTPURL        string `mapstructure:"http_url"`
	Script         string `mapstructure:"script"`
	ExpectedStatus []int  `mapstructure:"expected_status"`
	IntervalSecs   int    `mapstructure:"interval_secs"`
	TimeoutSecs    int    `mapstructure:"timeout_secs"`
	Retries        int    `mapstructure:"retries"`
}

func (c *HealthCheckConfig) intoHealthCheck() *appspec.HealthCheck {
	if c == nil {
		return nil
	}
	hc := &appspec.HealthCheck{
		HTTPURL:        c.HTTPURL,
		Script:         c.Script,
		ExpectedStatus: c.ExpectedStatus,
		IntervalSecs:   c.IntervalSecs,
		TimeoutSecs:    c.TimeoutSecs,
		Retries:        c.Retries,
	}
	if len(hc.ExpectedStatus) == 0 {
		hc.ExpectedStatus = []int{200}
	}
	if hc.IntervalSecs == 0 {
		hc.IntervalSecs = 30
	}
	if hc.TimeoutSecs == 0 {
		hc.TimeoutSecs = 5
	}
	if hc.Retries == 0 {
		hc.Retries = 3
	}
	return hc
}

// HooksConfig is the config-file shape of appspec.Hooks.
type HooksConfig struct {
	OnStart   string `mapstructure:"on_start"`
	OnStop    string `mapstructure:"on_stop"`
	OnRestart string `mapstructure:"on_restart"`
	OnCrash   string `mapstructure:"on_crash"`
	OnError   string `mapstructure:"on_error"`
}

func (c *HooksConfig) intoHooks() appspec.Hooks {
	if c == nil {
		return appspec.Hooks{}
	}
	return appspec.Hooks{OnStart: c.OnStart, OnStop: c.OnStop, OnRestart: c.OnRestart, OnCrash: c.OnCrash, OnError: c.OnError}
}

// PortRangeConfig is the config-file shape of appspec.PortRange.
type PortRangeConfig struct {
	Start int `mapstructure:"start"`
	End   int `mapstructure:"end"`
}

// AppConfig is one entry of a config file's "apps" list. Grounded on
// config.rs's AppConfig, narrowed to this module's AppSpec fields (command
// and args travel explicitly here rather than being folded into Rust's
// single "command" derived from script/bin/name).
type AppConfig struct {
	Name    string   `mapstructure:"name"`
	Mode    string   `mapstructure:"mode"`
	Command string   `mapstructure:"command"`
	Script  string   `mapstructure:"script"`
	Bin     string   `mapstructure:"bin"`
	Args    []string `mapstructure:"args"`
	Cwd     string   `mapstructure:"cwd"`

	Env        map[string]string `mapstructure:"env"`
	EnvFile    string            `mapstructure:"env_file"`
	EnvInherit bool              `mapstructure:"env_inherit"`

	Watch  bool     `mapstructure:"watch"`
	Ignore []string `mapstructure:"ignore"`

	RestartDelayMs  int  `mapstructure:"restart_delay_ms"`
	MaxRestarts     int  `mapstructure:"max_restarts"`
	KillTimeoutMs   int  `mapstructure:"kill_timeout_ms"`
	NoAutorestart   bool `mapstructure:"no_autorestart"`
	CrashWindowSecs int  `mapstructure:"crash_window_secs"`

	Instances int              `mapstructure:"instances"`
	Port      *int             `mapstructure:"port"`
	PortRange *PortRangeConfig `mapstructure:"port_range"`

	HealthCheck *HealthCheckConfig `mapstructure:"health_check"`

	MaxMemoryMB    *int64 `mapstructure:"max_memory_mb"`
	MaxUptimeSecs  *int64 `mapstructure:"max_uptime_secs"`
	StartupDelayMs int    `mapstructure:"startup_delay_ms"`

	Hooks *HooksConfig `mapstructure:"hooks"`
	Tags  []string      `mapstructure:"tags"`
}

// ConfigFile is the top-level shape of a declarative config file: a single
// "apps" list (config.rs's ConfigFile).
type ConfigFile struct {
	Apps []AppConfig `mapstructure:"apps"`
}

var modeAliases = map[string]appspec.Mode{
	"cmd": appspec.ModeRawCommand, "raw-command": appspec.ModeRawCommand, "command": appspec.ModeRawCommand,
	"node": appspec.ModeNodeScript, "node-script": appspec.ModeNodeScript,
	"npm": appspec.ModePackageScriptNPM, "package-script-npm": appspec.ModePackageScriptNPM,
	"pnpm": appspec.ModePackageScriptPNPM, "package-script-pnpm": appspec.ModePackageScriptPNPM,
	"yarn": appspec.ModePackageScriptYarn, "package-script-yarn": appspec.ModePackageScriptYarn,
	"cargo": appspec.ModeCargoProject, "cargo-project": appspec.ModeCargoProject,
	"rust": appspec.ModeSingleFileRust, "single-file-rust": appspec.ModeSingleFileRust,
}

// resolveMode mirrors config.rs's AppConfig::into_spec mode inference:
// explicit mode wins, else script implies node, else bin implies cargo,
// else raw command.
func (a AppConfig) resolveMode() (appspec.Mode, error) {
	if a.Mode != "" {
		m, ok := modeAliases[strings.ToLower(strings.TrimSpace(a.Mode))]
		if !ok {
			return "", apperr.New(apperr.ConfigError, "unknown mode: "+a.Mode)
		}
		return m, nil
	}
	if a.Script != "" {
		return appspec.ModeNodeScript, nil
	}
	if a.Bin != "" {
		return appspec.ModeCargoProject, nil
	}
	return appspec.ModeRawCommand, nil
}

func (a AppConfig) resolveCommand() string {
	switch {
	case a.Command != "":
		return a.Command
	case a.Script != "":
		return a.Script
	case a.Bin != "":
		return a.Bin
	default:
		return a.Name
	}
}

// resolveCwd makes a relative cwd absolute against baseDir (the config
// file's own directory), matching config.rs's into_spec cwd resolution.
func resolveCwd(cwd, baseDir string) string {
	if cwd == "" {
		return ""
	}
	if filepath.IsAbs(cwd) {
		return cwd
	}
	return filepath.Join(baseDir, cwd)
}

// intoAppSpec converts one config-file entry into an appspec.AppSpec,
// folding in env_file contents (loaded relative to baseDir) under the
// inline env map, which always wins on conflict.
func (a AppConfig) intoAppSpec(baseDir string) (*appspec.AppSpec, error) {
	if strings.TrimSpace(a.Name) == "" {
		return nil, apperr.New(apperr.ConfigError, "app requires a name")
	}
	mode, err := a.resolveMode()
	if err != nil {
		return nil, err
	}

	env := make(map[string]string, len(a.Env))
	if a.EnvFile != "" {
		fileEnv, err := LoadEnvFile(resolveCwd(a.EnvFile, baseDir))
		if err != nil {
			return nil, err
		}
		for k, v := range fileEnv {
			env[k] = v
		}
	}
	for k, v := range a.Env {
		env[k] = v
	}

	spec := &appspec.AppSpec{
		Name:       a.Name,
		Mode:       mode,
		Command:    a.resolveCommand(),
		Args:       a.Args,
		Cwd:        resolveCwd(a.Cwd, baseDir),
		Env:        env,
		EnvInherit: a.EnvInherit,

		Watch:          a.Watch,
		IgnorePatterns: a.Ignore,

		RestartPolicy: appspec.RestartPolicy{
			AutoRestart:     !a.NoAutorestart,
			MaxRestarts:     a.MaxRestarts,
			RestartDelayMs:  a.RestartDelayMs,
			CrashWindowSecs: a.CrashWindowSecs,
		},
		KillTimeoutMs: a.KillTimeoutMs,

		Instances: a.Instances,
		Port:      a.Port,

		HealthCheck: a.HealthCheck.intoHealthCheck(),

		MaxMemoryMB:    a.MaxMemoryMB,
		MaxUptimeSecs:  a.MaxUptimeSecs,
		StartupDelayMs: a.StartupDelayMs,

		Hooks: a.Hooks.intoHooks(),
		Tags:  a.Tags,
	}
	if spec.Instances == 0 {
		spec.Instances = 1
	}
	if a.PortRange != nil {
		spec.PortRange = &appspec.PortRange{Start: a.PortRange.Start, End: a.PortRange.End}
	}
	return spec, nil
}

// decodeTo decodes a map[string]any into T via mapstructure, reused from
// the teacher's generic decode helper.
func decodeTo[T any](m map[string]any) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(m); err != nil {
		return out, err
	}
	return out, nil
}

// LoadSpecs reads a declarative config file (TOML/YAML/JSON dispatched by
// extension) and returns the AppSpecs it declares (spec §6). An unsupported
// extension is rejected, not guessed at.
func LoadSpecs(path string) ([]*appspec.AppSpec, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "toml", "yaml", "yml", "json":
	default:
		return nil, apperr.New(apperr.ConfigError, "unsupported config file extension: "+ext)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.ConfigNotFound, path)
		}
		return nil, apperr.Wrap(apperr.ConfigError, "read config", err)
	}

	cf, err := decodeTo[ConfigFile](v.AllSettings())
	if err != nil {
		return nil, apperr.Wrap(apperr.ConfigError, "decode config", err)
	}

	baseDir := filepath.Dir(path)
	specs := make([]*appspec.AppSpec, 0, len(cf.Apps))
	for i, ac := range cf.Apps {
		spec, err := ac.intoAppSpec(baseDir)
		if err != nil {
			return nil, apperr.Wrap(apperr.ConfigError, fmt.Sprintf("apps[%d]", i), err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// LoadEnvFile parses the KEY=VALUE env-file format spec §6 defines: "#"
// starts a comment, blank lines are allowed, surrounding single or double
// quotes on a value are stripped, and values may themselves contain "=".
// Verbatim-adapted from the teacher's internal/config.loadEnvFile, exported
// here since spec §6 has this format "consumed by the CLI" rather than
// internally by the supervisor.
func LoadEnvFile(path string) (map[string]string, error) {
	// #nosec G304 -- path is an operator-supplied CLI argument, not untrusted input.
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.FileNotFound, "read env file", err)
	}

	env := make(map[string]string)
	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, apperr.New(apperr.ConfigError, fmt.Sprintf("invalid env line at %s:%d: %s", path, i+1, line))
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if n := len(value); n >= 2 && ((value[0] == '"' && value[n-1] == '"') || (value[0] == '\'' && value[n-1] == '\'')) {
			value = value[1 : n-1]
		}
		env[key] = value
	}
	return env, nil
}

// parseEnvKV splits a CLI "--env KEY=VALUE" flag, used by cmd/oxidepm.
func parseEnvKV(s string) (string, string, error) {
	idx := strings.IndexByte(s, '=')
	if idx < 0 {
		return "", "", fmt.Errorf("invalid --env %q: expected KEY=VALUE", s)
	}
	return s[:idx], s[idx+1:], nil
}

// ParseEnvFlags turns a repeated "--env KEY=VALUE" flag slice into a map.
func ParseEnvFlags(kvs []string) (map[string]string, error) {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, err := parseEnvKV(kv)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
