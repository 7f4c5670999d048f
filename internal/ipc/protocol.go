// Package ipc defines the wire protocol spoken between oxidepmd and its CLI
// front end, and the unix-domain-socket transport that carries it.
//
// The protocol types are grounded on
// original_source/crates/oxidepm-ipc/src/protocol.rs's Request/Response
// enums (#[serde(tag = "type", rename_all = "snake_case")]): each Rust enum
// variant becomes one Go constant, and the union of every variant's payload
// fields becomes sibling fields on one flattened struct (idiomatic Go has no
// sum types, and `omitempty` keeps a given request/response's wire form
// identical to the single-variant JSON the Rust side produces).
package ipc

import "github.com/oxidepm/oxidepm/internal/appspec"

// RequestType is the "type" discriminator of a Request.
type RequestType string

const (
	ReqPing      RequestType = "ping"
	ReqStart     RequestType = "start"
	ReqStop      RequestType = "stop"
	ReqRestart   RequestType = "restart"
	ReqDelete    RequestType = "delete"
	ReqStatus    RequestType = "status"
	ReqShow      RequestType = "show"
	ReqLogs      RequestType = "logs"
	ReqSave      RequestType = "save"
	ReqResurrect RequestType = "resurrect"
	ReqKill      RequestType = "kill"
	ReqReload    RequestType = "reload"
	ReqFlush     RequestType = "flush"
	ReqDescribe  RequestType = "describe"
)

// Request is one line of client->server NDJSON traffic (spec §6).
type Request struct {
	Type RequestType `json:"type"`

	Spec     *appspec.AppSpec `json:"spec,omitempty"`
	Selector string           `json:"selector,omitempty"`

	Lines  int  `json:"lines,omitempty"`
	Follow bool `json:"follow,omitempty"`
	Stdout bool `json:"stdout,omitempty"`
	Stderr bool `json:"stderr,omitempty"`
}

// ResponseType is the "type" discriminator of a Response.
type ResponseType string

const (
	RespPong        ResponseType = "pong"
	RespOk          ResponseType = "ok"
	RespError       ResponseType = "error"
	RespStatus      ResponseType = "status"
	RespShow        ResponseType = "show"
	RespLogLines    ResponseType = "log_lines"
	RespLogLine     ResponseType = "log_line"
	RespStarted     ResponseType = "started"
	RespStopped     ResponseType = "stopped"
	RespRestarted   ResponseType = "restarted"
	RespDeleted     ResponseType = "deleted"
	RespSaved       ResponseType = "saved"
	RespResurrected ResponseType = "resurrected"
	RespReloaded    ResponseType = "reloaded"
	RespFlushed     ResponseType = "flushed"
	RespDescribed   ResponseType = "described"
)

// AppInfo mirrors the Rust AppInfo{spec, state} pair (types.rs), the shape
// Status/Show serialize one app as.
type AppInfo struct {
	Spec  *appspec.AppSpec  `json:"spec"`
	State appspec.RunState  `json:"state"`
}

// Response is one line of server->client NDJSON traffic.
type Response struct {
	Type ResponseType `json:"type"`

	Message string `json:"message,omitempty"`
	Count   int    `json:"count,omitempty"`
	Path    string `json:"path,omitempty"`

	ID   int64  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`

	Apps []AppInfo `json:"apps,omitempty"`
	App  *AppInfo  `json:"app,omitempty"`

	Lines []string `json:"lines,omitempty"`
	Line  string   `json:"line,omitempty"`

	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Mode    string            `json:"mode,omitempty"`
}

// IsError reports whether r is a terminal Error response (spec §6).
func (r *Response) IsError() bool { return r.Type == RespError }

func Pong() *Response { return &Response{Type: RespPong} }

func Ok(message string) *Response { return &Response{Type: RespOk, Message: message} }

func Err(message string) *Response { return &Response{Type: RespError, Message: message} }

func StatusResp(apps []AppInfo) *Response { return &Response{Type: RespStatus, Apps: apps} }

func ShowResp(app AppInfo) *Response { return &Response{Type: RespShow, App: &app} }

func LogLines(lines []string) *Response { return &Response{Type: RespLogLines, Lines: lines} }

func LogLine(line string) *Response { return &Response{Type: RespLogLine, Line: line} }

func Started(id int64, name string) *Response {
	return &Response{Type: RespStarted, ID: id, Name: name}
}

func Stopped(count int) *Response { return &Response{Type: RespStopped, Count: count} }

func Restarted(count int) *Response { return &Response{Type: RespRestarted, Count: count} }

func Deleted(count int) *Response { return &Response{Type: RespDeleted, Count: count} }

func Saved(count int, path string) *Response {
	return &Response{Type: RespSaved, Count: count, Path: path}
}

func Resurrected(count int) *Response { return &Response{Type: RespResurrected, Count: count} }

func Reloaded(count int) *Response { return &Response{Type: RespReloaded, Count: count} }

func Flushed(count int) *Response { return &Response{Type: RespFlushed, Count: count} }

func Described(name, command string, args []string, cwd string, env map[string]string, mode string) *Response {
	return &Response{
		Type: RespDescribed, Name: name, Command: command, Args: args,
		Cwd: cwd, Env: env, Mode: mode,
	}
}
