package notify

import "fmt"

// EventType names the kind of process event for filtering and formatting.
type EventType string

const (
	EventStarted           EventType = "start"
	EventStopped           EventType = "stop"
	EventCrashed           EventType = "crash"
	EventRestarted         EventType = "restart"
	EventMemoryLimit       EventType = "memory_limit"
	EventHealthCheckFailed EventType = "health_check"
)

// Event is a single notable process lifecycle occurrence, fanned out to
// whatever sinks are configured. Grounded on
// original_source/crates/oxidepm-notify/src/event.rs's ProcessEvent enum,
// collapsed from a tagged-union-per-variant shape into one struct with
// optional fields (idiomatic Go: no sum types), since every variant already
// shares AppID/AppName as common fields.
type Event struct {
	Type EventType

	AppID   int64
	AppName string

	ExitCode     *int
	Error        string
	RestartCount int
	MemoryMB     uint64
	LimitMB      uint64
	Endpoint     string
}

func Started(appID int64, name string) Event {
	return Event{Type: EventStarted, AppID: appID, AppName: name}
}

func Stopped(appID int64, name string, exitCode *int) Event {
	return Event{Type: EventStopped, AppID: appID, AppName: name, ExitCode: exitCode}
}

func Crashed(appID int64, name, errMsg string) Event {
	return Event{Type: EventCrashed, AppID: appID, AppName: name, Error: errMsg}
}

func Restarted(appID int64, name string, restartCount int) Event {
	return Event{Type: EventRestarted, AppID: appID, AppName: name, RestartCount: restartCount}
}

func MemoryLimitExceeded(appID int64, name string, memoryMB, limitMB uint64) Event {
	return Event{Type: EventMemoryLimit, AppID: appID, AppName: name, MemoryMB: memoryMB, LimitMB: limitMB}
}

func HealthCheckFailed(appID int64, name, endpoint string) Event {
	return Event{Type: EventHealthCheckFailed, AppID: appID, AppName: name, Endpoint: endpoint}
}

// FormatMessage renders a human-readable, emoji-prefixed message, matching
// ProcessEvent::format_message's wording so downstream sinks read the same.
func (e Event) FormatMessage() string {
	switch e.Type {
	case EventStarted:
		return fmt.Sprintf("\U0001F7E2 Started: `%s` (id: %d)", e.AppName, e.AppID)
	case EventStopped:
		code := ""
		if e.ExitCode != nil {
			code = fmt.Sprintf(" - Exit code %d", *e.ExitCode)
		}
		return fmt.Sprintf("⚪ Stopped: `%s`%s", e.AppName, code)
	case EventCrashed:
		return fmt.Sprintf("\U0001F534 Crashed: `%s` (id: %d)\nError: %s", e.AppName, e.AppID, e.Error)
	case EventRestarted:
		return fmt.Sprintf("\U0001F504 Restarted: `%s` (id: %d, %s restart)", e.AppName, e.AppID, ordinal(e.RestartCount))
	case EventMemoryLimit:
		return fmt.Sprintf("⚠️ Memory limit: `%s` (id: %d)\nUsing %dMB / %dMB limit", e.AppName, e.AppID, e.MemoryMB, e.LimitMB)
	case EventHealthCheckFailed:
		return fmt.Sprintf("\U0001F6A8 Health check failed: `%s` (id: %d)\nEndpoint: %s", e.AppName, e.AppID, e.Endpoint)
	default:
		return fmt.Sprintf("event %s: `%s` (id: %d)", e.Type, e.AppName, e.AppID)
	}
}

func ordinal(n int) string {
	switch n {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	default:
		return fmt.Sprintf("%dth", n)
	}
}
