// Package appspec holds the declarative data model shared by the
// registry, the supervisor, and the IPC wire protocol: AppSpec (the
// user's declared intent) and RunState (the live state of one spec).
package appspec

import (
	"regexp"
	"time"
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName reports whether s is a legal app name: non-empty and
// matching [A-Za-z0-9_-]+. This is enforced so names can be used verbatim
// as log-filename prefixes with no path-traversal risk.
func ValidateName(s string) bool {
	return s != "" && nameRE.MatchString(s)
}

// Mode selects which Runner builds and starts the process.
type Mode string

const (
	ModeRawCommand       Mode = "raw-command"
	ModeNodeScript       Mode = "node-script"
	ModePackageScriptNPM Mode = "package-script-npm"
	ModePackageScriptPNPM Mode = "package-script-pnpm"
	ModePackageScriptYarn Mode = "package-script-yarn"
	ModeCargoProject     Mode = "cargo-project"
	ModeSingleFileRust   Mode = "single-file-rust"
)

var validModes = map[Mode]bool{
	ModeRawCommand: true, ModeNodeScript: true, ModePackageScriptNPM: true,
	ModePackageScriptPNPM: true, ModePackageScriptYarn: true,
	ModeCargoProject: true, ModeSingleFileRust: true,
}

// ValidMode reports whether m is one of the known Runner modes.
func ValidMode(m Mode) bool { return validModes[m] }

// PortRange is an inclusive [Start, End] range for cluster port assignment.
type PortRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// RestartPolicy governs auto-restart behavior on unexpected exit.
type RestartPolicy struct {
	AutoRestart     bool `json:"auto_restart"`
	MaxRestarts     int  `json:"max_restarts"`
	RestartDelayMs  int  `json:"restart_delay_ms"`
	CrashWindowSecs int  `json:"crash_window_secs"`
}

// HealthCheck configures an HTTP or script liveness probe.
type HealthCheck struct {
	HTTPURL        string `json:"http_url,omitempty"`
	Script         string `json:"script,omitempty"`
	ExpectedStatus []int  `json:"expected_status,omitempty"`
	IntervalSecs   int    `json:"interval_secs"`
	TimeoutSecs    int    `json:"timeout_secs"`
	Retries        int    `json:"retries"`
}

// Configured reports whether a health check is present at all.
func (h *HealthCheck) Configured() bool {
	return h != nil && (h.HTTPURL != "" || h.Script != "")
}

// Hooks names the fire-and-forget scripts run on each of the five
// lifecycle events. Empty string means "no hook for this event".
type Hooks struct {
	OnStart   string `json:"on_start,omitempty"`
	OnStop    string `json:"on_stop,omitempty"`
	OnRestart string `json:"on_restart,omitempty"`
	OnCrash   string `json:"on_crash,omitempty"`
	OnError   string `json:"on_error,omitempty"`
}

// AppSpec is the declarative intent for one managed process.
type AppSpec struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Mode Mode   `json:"mode"`

	Command    string   `json:"command"`
	Args       []string `json:"args"`
	Cwd        string   `json:"cwd"`
	Env        map[string]string `json:"env"`
	EnvInherit bool     `json:"env_inherit"`

	Watch          bool     `json:"watch"`
	IgnorePatterns []string `json:"ignore_patterns"`

	RestartPolicy RestartPolicy `json:"restart_policy"`
	KillTimeoutMs int           `json:"kill_timeout_ms"`

	Instances  int  `json:"instances"`
	InstanceID *int `json:"instance_id"`
	Port       *int `json:"port"`
	PortRange  *PortRange `json:"port_range"`

	HealthCheck *HealthCheck `json:"health_check,omitempty"`

	MaxMemoryMB   *int64 `json:"max_memory_mb,omitempty"`
	MaxUptimeSecs *int64 `json:"max_uptime_secs,omitempty"`
	StartupDelayMs int   `json:"startup_delay_ms,omitempty"`

	Hooks Hooks    `json:"hooks"`
	Tags  []string `json:"tags"`

	CreatedAt time.Time `json:"created_at"`
}

// AppID/AppName/AppTags implement selector.App.
func (a *AppSpec) AppID() int64      { return a.ID }
func (a *AppSpec) AppName() string   { return a.Name }
func (a *AppSpec) AppTags() []string { return a.Tags }

// InstanceName returns "{name}-{instance_id}" for a cluster child, or Name
// unchanged for a parent/non-cluster spec.
func (a *AppSpec) InstanceName() string {
	if a.InstanceID == nil {
		return a.Name
	}
	return a.Name + "-" + itoa(*a.InstanceID)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Clone returns a deep-enough copy of a for instance specialization (cluster
// start clones per-instance, reload clones for the temporary replacement).
func (a *AppSpec) Clone() *AppSpec {
	cp := *a
	cp.Args = append([]string(nil), a.Args...)
	cp.IgnorePatterns = append([]string(nil), a.IgnorePatterns...)
	cp.Tags = append([]string(nil), a.Tags...)
	if a.Env != nil {
		cp.Env = make(map[string]string, len(a.Env))
		for k, v := range a.Env {
			cp.Env[k] = v
		}
	}
	if a.InstanceID != nil {
		v := *a.InstanceID
		cp.InstanceID = &v
	}
	if a.Port != nil {
		v := *a.Port
		cp.Port = &v
	}
	if a.PortRange != nil {
		v := *a.PortRange
		cp.PortRange = &v
	}
	if a.HealthCheck != nil {
		v := *a.HealthCheck
		v.ExpectedStatus = append([]int(nil), a.HealthCheck.ExpectedStatus...)
		cp.HealthCheck = &v
	}
	if a.MaxMemoryMB != nil {
		v := *a.MaxMemoryMB
		cp.MaxMemoryMB = &v
	}
	if a.MaxUptimeSecs != nil {
		v := *a.MaxUptimeSecs
		cp.MaxUptimeSecs = &v
	}
	return &cp
}

// Status is the per-process state-machine value (spec §4.7.1).
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusBuilding Status = "building"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusErrored  Status = "errored"
)

// RunState is the live state for one spec.
type RunState struct {
	AppID       int64   `json:"app_id"`
	PID         *int    `json:"pid,omitempty"`
	Status      Status  `json:"status"`
	Restarts    int     `json:"restarts"`
	UptimeSecs  int64   `json:"uptime_secs"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
	LastExitCode *int   `json:"last_exit_code,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`

	Healthy             bool       `json:"healthy"`
	LastHealthCheck     *time.Time `json:"last_health_check,omitempty"`
	HealthCheckFailures int        `json:"health_check_failures"`

	Port       *int `json:"port,omitempty"`
	InstanceID *int `json:"instance_id,omitempty"`

	ClusterInstanceIDs []int64 `json:"cluster_instance_ids,omitempty"`
}
