package supervisor

import (
	"context"
	"sort"
	"strings"

	"github.com/oxidepm/oxidepm/internal/apperr"
	"github.com/oxidepm/oxidepm/internal/appspec"
	"github.com/oxidepm/oxidepm/internal/logstream"
	"github.com/oxidepm/oxidepm/internal/selector"
)

// AppView pairs a spec with its live run state, the shape RequestHandler's
// Status/Show responses serialize.
type AppView struct {
	Spec  *appspec.AppSpec
	State appspec.RunState
}

// Status returns a view for every registered app: those with no in-memory
// record (known to the registry but never started this daemon lifetime)
// default to Stopped, per §4.8.
func (s *Supervisor) Status(ctx context.Context) ([]AppView, error) {
	specs, err := s.reg.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AppView, 0, len(specs))
	for _, spec := range specs {
		if rec := s.getRecord(spec.ID); rec != nil {
			out = append(out, AppView{Spec: specOf(rec), State: viewOf(rec)})
			continue
		}
		out = append(out, AppView{Spec: spec, State: appspec.RunState{AppID: spec.ID, Status: appspec.StatusStopped}})
	}
	return out, nil
}

// Show returns the single first match for sel, per §4.8 ("All returns
// nothing" - callers should not pass a KindAll selector here).
func (s *Supervisor) Show(ctx context.Context, sel selector.Selector) (AppView, error) {
	if sel.Kind == selector.KindAll {
		return AppView{}, apperr.New(apperr.InvalidSelector, "show does not accept selector 'all'")
	}
	recs := s.selectRecords(sel)
	if len(recs) > 0 {
		rec := recs[0]
		return AppView{Spec: specOf(rec), State: viewOf(rec)}, nil
	}
	// Fall back to the registry for an app known but not currently running.
	var spec *appspec.AppSpec
	var err error
	switch sel.Kind {
	case selector.KindID:
		spec, err = s.reg.GetByID(ctx, sel.ID)
	case selector.KindName:
		spec, err = s.reg.GetByName(ctx, sel.Name)
	default:
		err = apperr.New(apperr.AppNotFound, "no app matches selector")
	}
	if err != nil {
		return AppView{}, err
	}
	return AppView{Spec: spec, State: appspec.RunState{AppID: spec.ID, Status: appspec.StatusStopped}}, nil
}

// DescribeView is the static-only view Describe returns - unlike Show's
// AppView, it carries no run state.
type DescribeView struct {
	Name    string
	Command string
	Args    []string
	Cwd     string
	Env     map[string]string
	Mode    appspec.Mode
}

// Describe returns the first match's static spec fields, without touching
// its run state.
func (s *Supervisor) Describe(ctx context.Context, sel selector.Selector) (DescribeView, error) {
	view, err := s.Show(ctx, sel)
	if err != nil {
		return DescribeView{}, err
	}
	spec := view.Spec
	return DescribeView{
		Name:    spec.Name,
		Command: spec.Command,
		Args:    append([]string(nil), spec.Args...),
		Cwd:     spec.Cwd,
		Env:     spec.Env,
		Mode:    spec.Mode,
	}, nil
}

// LogQuery parameterizes the Logs verb.
type LogQuery struct {
	Selector selector.Selector
	Lines    int
	Stdout   bool
	Stderr   bool
}

// Logs returns up to Lines trailing lines from each selected stream (stdout
// by default, stdout and/or stderr when asked for). When both streams are
// read, their lines are merged by the timestamp prefix each line carries,
// stdout first within the same second. Follow is a separate streaming
// concern handled by the IPC layer directly against logstream.Follow, not
// modeled here since it doesn't fit a single request/response call.
func (s *Supervisor) Logs(ctx context.Context, q LogQuery) ([]string, error) {
	rec := s.firstMatch(q.Selector)
	if rec == nil {
		return nil, apperr.New(apperr.AppNotFound, "no app matches selector")
	}
	rec.mu.Lock()
	logs := rec.logs
	rec.mu.Unlock()
	if logs == nil {
		return nil, nil
	}

	var out []string
	if q.Stdout || (!q.Stdout && !q.Stderr) {
		lines, err := logstream.Tail(logs.Out.Path(), q.Lines)
		if err != nil {
			return nil, apperr.Wrap(apperr.FileNotFound, "tail stdout", err)
		}
		out = append(out, lines...)
	}
	if q.Stderr {
		lines, err := logstream.Tail(logs.Err.Path(), q.Lines)
		if err != nil {
			return nil, apperr.Wrap(apperr.FileNotFound, "tail stderr", err)
		}
		out = append(out, lines...)
	}
	if q.Stdout && q.Stderr {
		stamp := func(line string) string {
			if i := strings.IndexByte(line, ']'); i >= 0 {
				return line[:i]
			}
			return line
		}
		sort.SliceStable(out, func(i, j int) bool { return stamp(out[i]) < stamp(out[j]) })
	}
	return out, nil
}

// LogPath resolves the live stdout (or, if stdout is false, stderr) log
// file path for sel's first match, for the IPC layer's follow mode
// (logstream.Follow tails a path directly; it has no notion of a selector).
func (s *Supervisor) LogPath(sel selector.Selector, stdout bool) (string, error) {
	rec := s.firstMatch(sel)
	if rec == nil {
		return "", apperr.New(apperr.AppNotFound, "no app matches selector")
	}
	rec.mu.Lock()
	logs := rec.logs
	rec.mu.Unlock()
	if logs == nil {
		return "", apperr.New(apperr.ProcessNotRunning, "app has no open log stream")
	}
	if stdout {
		return logs.Out.Path(), nil
	}
	return logs.Err.Path(), nil
}

func (s *Supervisor) firstMatch(sel selector.Selector) *appRecord {
	recs := s.selectRecords(sel)
	if len(recs) == 0 {
		return nil
	}
	return recs[0]
}
