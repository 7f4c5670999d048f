package supervisor

import (
	"context"
	"time"

	"github.com/oxidepm/oxidepm/internal/apperr"
	"github.com/oxidepm/oxidepm/internal/appspec"
	"github.com/oxidepm/oxidepm/internal/hooks"
	"github.com/oxidepm/oxidepm/internal/notify"
	"github.com/oxidepm/oxidepm/internal/selector"
)

// Stop implements the Stop protocol (§4.7.3) for every record sel matches,
// returning the number of apps actually stopped.
func (s *Supervisor) Stop(ctx context.Context, sel selector.Selector) (int, error) {
	recs := s.selectRecords(sel)
	count := 0
	for _, rec := range recs {
		if rec.isClusterParent {
			for _, childID := range viewOf(rec).ClusterInstanceIDs {
				if child := s.getRecord(childID); child != nil {
					if err := s.stopRecord(ctx, child, true); err == nil {
						count++
					}
				}
			}
			s.setStatus(rec, appspec.StatusStopped)
			continue
		}
		if err := s.stopRecord(ctx, rec, true); err == nil {
			count++
		}
	}
	return count, nil
}

// stopRecord runs the Stop protocol body for a single process-backed
// record: atomically snapshot what's needed, transition to Stopping, drop
// the lock, signal the child, then finalize. graceful selects whether
// on_stop/Stopped notifications fire (false is used internally by rollback
// paths that don't want user-facing noise).
func (s *Supervisor) stopRecord(ctx context.Context, rec *appRecord, graceful bool) error {
	rec.mu.Lock()
	if rec.proc == nil {
		rec.mu.Unlock()
		return nil
	}
	name := rec.spec.Name
	appID := rec.spec.ID
	killMs := rec.spec.KillTimeoutMs
	hset := rec.spec.Hooks
	proc := rec.proc
	runID := rec.runID
	rec.state.Status = appspec.StatusStopping
	rec.mu.Unlock()

	wait := defaultKillTimeout
	if killMs > 0 {
		wait = time.Duration(killMs) * time.Millisecond
	}
	exitErr := proc.Stop(wait)

	if rec.cancel != nil {
		rec.cancel()
	}
	rec.mu.Lock()
	rec.state.Status = appspec.StatusStopped
	rec.state.PID = nil
	rec.state.StartedAt = nil
	exitCode := exitCodeOf(exitErr)
	rec.state.LastExitCode = exitCode
	rec.mu.Unlock()

	if runID != 0 {
		_ = s.reg.UpdateRunStop(ctx, runID, appspec.StatusStopped, exitCode)
	}
	s.metricsCol.Forget(appID, name)

	if graceful {
		s.notifyAsync(notify.Stopped(appID, name, exitCode))
		hooks.Run(hset, hooks.Context{AppID: appID, AppName: name, Event: hooks.EventStop, ExitCode: exitCode}, rec.logs.Hooks)
	}
	return nil
}

func (s *Supervisor) setStatus(rec *appRecord, status appspec.Status) {
	rec.mu.Lock()
	rec.state.Status = status
	rec.mu.Unlock()
}

// Restart implements the Restart protocol (§4.7.4): on_restart fires once
// before the stop, then stop, a 100ms pause, and start again preserving
// the spec.
func (s *Supervisor) Restart(ctx context.Context, sel selector.Selector) (int, error) {
	recs := s.selectRecords(sel)
	count := 0
	for _, rec := range recs {
		if err := s.restartRecord(ctx, rec); err == nil {
			count++
		}
	}
	return count, nil
}

func (s *Supervisor) restartRecord(ctx context.Context, rec *appRecord) error {
	if rec.isClusterParent {
		for _, childID := range viewOf(rec).ClusterInstanceIDs {
			if child := s.getRecord(childID); child != nil {
				_ = s.restartRecord(ctx, child)
			}
		}
		return nil
	}

	spec := specOf(rec)
	before := viewOf(rec)
	hset := spec.Hooks
	hooks.Run(hset, hooks.Context{AppID: spec.ID, AppName: spec.Name, Event: hooks.EventRestart, PID: before.PID}, rec.logs.Hooks)

	wasClusterChild := rec.isClusterChild
	parentID := rec.parentID
	rec.mu.Lock()
	crashWindowStart, crashCount := rec.crashWindowStart, rec.crashCount
	rec.mu.Unlock()

	if err := s.stopRecord(ctx, rec, true); err != nil {
		return err
	}
	s.removeRecord(spec.ID)
	time.Sleep(100 * time.Millisecond)

	st, err := s.startSingle(ctx, spec)
	if err != nil {
		return err
	}
	restarts := before.Restarts + 1
	if newRec := s.getRecord(st.AppID); newRec != nil {
		newRec.mu.Lock()
		newRec.state.Restarts = restarts
		newRec.isClusterChild = wasClusterChild
		newRec.parentID = parentID
		newRec.crashWindowStart = crashWindowStart
		newRec.crashCount = crashCount
		newRec.mu.Unlock()
	}
	s.notifyAsync(notify.Restarted(spec.ID, spec.Name, restarts))
	return nil
}

// Delete stops (if running) and removes every record sel matches, from
// both the in-memory map and the registry.
func (s *Supervisor) Delete(ctx context.Context, sel selector.Selector) (int, error) {
	recs := s.selectRecords(sel)
	count := 0
	for _, rec := range recs {
		if rec.isClusterParent {
			for _, childID := range viewOf(rec).ClusterInstanceIDs {
				if child := s.getRecord(childID); child != nil {
					_ = s.stopRecord(ctx, child, true)
					s.removeRecord(childID)
					_ = s.reg.DeleteApp(ctx, childID)
				}
			}
			s.removeRecord(rec.spec.ID)
			_ = s.reg.DeleteApp(ctx, rec.spec.ID)
			count++
			continue
		}
		_ = s.stopRecord(ctx, rec, true)
		s.removeRecord(rec.spec.ID)
		if err := s.reg.DeleteApp(ctx, rec.spec.ID); err == nil || apperr.KindOf(err) == apperr.AppNotFound {
			count++
		}
	}
	return count, nil
}
