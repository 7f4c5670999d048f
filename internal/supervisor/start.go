package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/oxidepm/oxidepm/internal/apperr"
	"github.com/oxidepm/oxidepm/internal/appspec"
	"github.com/oxidepm/oxidepm/internal/hooks"
	"github.com/oxidepm/oxidepm/internal/logstream"
	"github.com/oxidepm/oxidepm/internal/notify"
	"github.com/oxidepm/oxidepm/internal/runner"
)

const defaultKillTimeout = 5 * time.Second

// Start implements the Start protocol (spec §4.7.2). spec.ID is ignored on
// input; the id is resolved or allocated here. Cluster specs (Instances>1,
// no InstanceID set) are delegated to clusterStart.
func (s *Supervisor) Start(ctx context.Context, spec *appspec.AppSpec) (appspec.RunState, error) {
	if !appspec.ValidateName(spec.Name) {
		return appspec.RunState{}, apperr.New(apperr.ConfigError, "invalid app name: "+spec.Name)
	}
	if !appspec.ValidMode(spec.Mode) {
		return appspec.RunState{}, apperr.New(apperr.InvalidMode, string(spec.Mode))
	}

	if err := s.resolveID(ctx, spec); err != nil {
		return appspec.RunState{}, err
	}

	if spec.Instances > 1 && spec.InstanceID == nil {
		return s.clusterStart(ctx, spec)
	}

	return s.startSingle(ctx, spec)
}

// resolveID decides spec.ID: reuse an existing registry row's id if spec.Name
// is already known (AppAlreadyExists if that app is currently Running),
// otherwise insert a fresh row and allocate a new id.
func (s *Supervisor) resolveID(ctx context.Context, spec *appspec.AppSpec) error {
	if rec := s.getRecordByName(spec.Name); rec != nil {
		st := viewOf(rec)
		if st.Status == appspec.StatusRunning || st.Status == appspec.StatusStarting {
			return apperr.New(apperr.AppAlreadyExists, "app already running: "+spec.Name)
		}
		spec.ID = rec.spec.ID
		return s.reg.UpdateApp(ctx, spec)
	}
	existing, err := s.reg.GetByName(ctx, spec.Name)
	if err == nil {
		spec.ID = existing.ID
		return s.reg.UpdateApp(ctx, spec)
	}
	if apperr.KindOf(err) != apperr.AppNotFound {
		return err
	}
	return s.reg.InsertApp(ctx, spec)
}

// startSingle runs the non-cluster portion of the Start protocol for a
// spec whose id has already been resolved: startup delay, build/prepare,
// spawn, log streams, registry+map insertion, notification, on_start hook,
// and the three long-lived per-app tasks.
func (s *Supervisor) startSingle(ctx context.Context, spec *appspec.AppSpec) (appspec.RunState, error) {
	if spec.StartupDelayMs > 0 {
		time.Sleep(time.Duration(spec.StartupDelayMs) * time.Millisecond)
	}

	r, err := runner.Dispatch(spec.Mode)
	if err != nil {
		return appspec.RunState{}, apperr.Wrap(apperr.InvalidMode, "", err)
	}

	prep, err := r.Prepare(ctx, spec)
	if err != nil || !prep.Success {
		msg := prep.Output
		if err != nil {
			msg = err.Error()
		}
		return appspec.RunState{}, apperr.New(apperr.BuildFailed, msg)
	}

	ls, err := logstream.Open(s.logDir, spec.InstanceName(), logstream.DefaultRotationConfig())
	if err != nil {
		return appspec.RunState{}, apperr.Wrap(apperr.ProcessStartFailed, "open log stream", err)
	}

	mergedEnv := s.env.MergeApp(spec.Env, spec.EnvInherit)
	pidFile := filepath.Join(s.logDir, spec.InstanceName()+".pid")

	proc, err := runner.Start(r, spec, mergedEnv, pidFile, ls)
	if err != nil {
		_ = ls.Close()
		return appspec.RunState{}, asAppErr(err)
	}

	snap := proc.Snapshot()
	runCtx, cancel := context.WithCancel(s.ctx)
	rec := &appRecord{
		spec: spec,
		proc: proc,
		logs: ls,
		state: appspec.RunState{
			AppID:      spec.ID,
			PID:        &snap.PID,
			Status:     appspec.StatusRunning,
			StartedAt:  &snap.StartedAt,
			Port:       spec.Port,
			InstanceID: spec.InstanceID,
		},
		cancel: cancel,
	}
	runID, err := s.reg.InsertRun(ctx, spec.ID, snap.PID)
	if err == nil {
		rec.runID = runID
	}

	s.insertRecord(rec)

	s.notifyAsync(notify.Started(spec.ID, spec.Name))
	hooks.Run(spec.Hooks, hooks.Context{AppID: spec.ID, AppName: spec.Name, Event: hooks.EventStart, PID: &snap.PID}, ls.Hooks)

	s.spawnSupervision(runCtx, spec.ID)
	if spec.HealthCheck.Configured() {
		s.spawnHealth(runCtx, spec.ID)
	}
	if spec.Watch {
		s.spawnWatch(runCtx, spec.ID)
	}

	return viewOf(rec), nil
}

// clusterPort computes the port assigned to instance i of spec, per
// §4.7.5: port_range.start+i if within range, else port+i, else none.
func clusterPort(spec *appspec.AppSpec, i int) *int {
	if spec.PortRange != nil {
		p := spec.PortRange.Start + i
		if p <= spec.PortRange.End {
			return &p
		}
		return nil
	}
	if spec.Port != nil {
		p := *spec.Port + i
		return &p
	}
	return nil
}

// clusterStart implements §4.7.5: start each instance sequentially,
// rolling back all of them on any failure, then insert a parent aggregate
// record under the original id/name with no process of its own.
func (s *Supervisor) clusterStart(ctx context.Context, spec *appspec.AppSpec) (appspec.RunState, error) {
	n := spec.Instances
	childIDs := make([]int64, 0, n)

	rollback := func() {
		for _, id := range childIDs {
			if rec := s.getRecord(id); rec != nil {
				_ = s.stopRecord(context.Background(), rec, false)
				s.removeRecord(id)
				_ = s.reg.DeleteApp(context.Background(), id)
			}
		}
	}

	for i := 0; i < n; i++ {
		inst := spec.Clone()
		inst.ID = 0
		inst.InstanceID = &i
		inst.Name = fmt.Sprintf("%s-%d", spec.Name, i)
		inst.Instances = 1
		if p := clusterPort(spec, i); p != nil {
			inst.Port = p
			if inst.Env == nil {
				inst.Env = map[string]string{}
			}
			inst.Env["PORT"] = fmt.Sprintf("%d", *p)
		}

		if err := s.reg.InsertApp(ctx, inst); err != nil {
			rollback()
			return appspec.RunState{}, err
		}
		st, err := s.startSingle(ctx, inst)
		if err != nil {
			rollback()
			return appspec.RunState{}, err
		}
		if rec := s.getRecord(st.AppID); rec != nil {
			rec.mu.Lock()
			rec.isClusterChild = true
			rec.parentID = spec.ID
			rec.mu.Unlock()
		}
		childIDs = append(childIDs, st.AppID)
	}

	parentSpec := spec.Clone()
	now := time.Now()
	parentRec := &appRecord{
		spec:            parentSpec,
		isClusterParent: true,
		cancel:          func() {},
		state: appspec.RunState{
			AppID:              spec.ID,
			Status:             appspec.StatusRunning,
			StartedAt:          &now,
			ClusterInstanceIDs: childIDs,
		},
	}
	s.insertRecord(parentRec)
	return viewOf(parentRec), nil
}
