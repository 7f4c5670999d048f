package supervisor

import (
	"context"
	"time"

	"github.com/oxidepm/oxidepm/internal/appspec"
	"github.com/oxidepm/oxidepm/internal/health"
	"github.com/oxidepm/oxidepm/internal/hooks"
	"github.com/oxidepm/oxidepm/internal/metrics"
	"github.com/oxidepm/oxidepm/internal/notify"
	"github.com/oxidepm/oxidepm/internal/registry"
	"github.com/oxidepm/oxidepm/internal/selector"
	"github.com/oxidepm/oxidepm/internal/watch"
)

func selectorForID(id int64) selector.Selector {
	return selector.Selector{Kind: selector.KindID, ID: id}
}

func metricSampleOf(s metrics.Sample) registry.MetricSample {
	return registry.MetricSample{CPUPercent: s.CPUPercent, MemoryBytes: s.MemoryBytes, SampledAt: s.SampledAt}
}

// spawnSupervision implements §4.7.7. A child goroutine claims the single
// "owns cmd.Wait()" role via Process.MonitoringStartIfNeeded (the
// handshake process.Process shares with Process.Stop/Kill so exactly one
// caller ever reaps the child) and blocks on it; this goroutine's 500ms
// ticker recomputes uptime_secs while the process is still running and
// reacts the instant the wait goroutine reports an exit - a blocking wait
// plus a cooperating ticker rather than a literal non-blocking poll, since
// Go's os.Process has no non-blocking try_wait.
func (s *Supervisor) spawnSupervision(ctx context.Context, appID int64) {
	rec := s.getRecord(appID)
	if rec == nil {
		return
	}
	proc := rec.proc
	if proc == nil || !proc.MonitoringStartIfNeeded() {
		return
	}

	exitCh := make(chan error, 1)
	go func() {
		cmd := proc.CopyCmd()
		var err error
		if cmd != nil {
			err = cmd.Wait()
		}
		proc.CloseWaitDone()
		proc.MarkExited(err)
		proc.CloseWriters()
		proc.MonitoringStop()
		exitCh <- err
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		startedAt := time.Now()
		if st := viewOf(rec); st.StartedAt != nil {
			startedAt = *st.StartedAt
		}
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-exitCh:
				s.handleExit(appID, err)
				return
			case <-ticker.C:
				rec.mu.Lock()
				if rec.state.Status == appspec.StatusRunning {
					rec.state.UptimeSecs = int64(time.Since(startedAt).Seconds())
				}
				rec.mu.Unlock()
			}
		}
	}()
}

// handleExit runs once per process exit, deciding Stopped-vs-crash purely
// from the status the record held at the moment of exit: Stopping means an
// explicit Stop/Restart/Delete already owns the transition (stopRecord
// finalizes it), anything else means the child went away on its own.
func (s *Supervisor) handleExit(appID int64, exitErr error) {
	rec := s.getRecord(appID)
	if rec == nil {
		return
	}
	rec.mu.Lock()
	wasStopping := rec.state.Status == appspec.StatusStopping
	if wasStopping {
		rec.mu.Unlock()
		return
	}
	name := rec.spec.Name
	hset := rec.spec.Hooks
	exitCode := exitCodeOf(exitErr)
	rec.state.Status = appspec.StatusErrored
	rec.state.PID = nil
	rec.state.LastExitCode = exitCode
	runID := rec.runID
	hooksLog := rec.logs.Hooks
	rec.mu.Unlock()

	if runID != 0 {
		_ = s.reg.UpdateRunStop(context.Background(), runID, appspec.StatusErrored, exitCode)
	}
	s.metricsCol.Forget(appID, name)

	errMsg := "exited unexpectedly"
	if exitErr != nil {
		errMsg = exitErr.Error()
	}
	s.notifyAsync(notify.Crashed(appID, name, errMsg))
	hooks.Run(hset, hooks.Context{AppID: appID, AppName: name, Event: hooks.EventCrash, ExitCode: exitCode}, hooksLog)

	s.maybeAutoRestart(appID)
}

// maybeAutoRestart resolves spec §9 open question 1: auto-restart is
// scheduled from right here, in the supervision task that observed the
// unexpected exit, not from a separate reconciler loop. It enforces
// restart_policy's rolling crash window: once max_restarts is exceeded
// within crash_window_secs, the app stays Errored until a manual Restart.
func (s *Supervisor) maybeAutoRestart(appID int64) {
	rec := s.getRecord(appID)
	if rec == nil {
		return
	}
	rec.mu.Lock()
	policy := rec.spec.RestartPolicy
	if !policy.AutoRestart {
		rec.mu.Unlock()
		return
	}
	now := time.Now()
	windowSecs := policy.CrashWindowSecs
	if windowSecs <= 0 {
		windowSecs = 60
	}
	if rec.crashWindowStart.IsZero() || now.Sub(rec.crashWindowStart) > time.Duration(windowSecs)*time.Second {
		rec.crashWindowStart = now
		rec.crashCount = 0
	}
	rec.crashCount++
	exceeded := policy.MaxRestarts > 0 && rec.crashCount > policy.MaxRestarts
	delayMs := policy.RestartDelayMs
	rec.mu.Unlock()

	if exceeded {
		return
	}

	go func() {
		if delayMs > 0 {
			time.Sleep(time.Duration(delayMs) * time.Millisecond)
		}
		if err := s.restartRecord(context.Background(), rec); err != nil {
			s.logger.Warn("auto-restart failed", "app_id", appID, "error", err)
		}
	}()
}

// spawnHealth implements §4.7.8: wait 5s for the process to settle, then
// probe every interval_secs without holding the record lock, updating the
// health fields under a brief lock and transitioning to Errored on
// sustained failure.
func (s *Supervisor) spawnHealth(ctx context.Context, appID int64) {
	rec := s.getRecord(appID)
	if rec == nil {
		return
	}
	cfg := rec.spec.HealthCheck
	mon := health.NewMonitor(cfg)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
		interval := mon.Interval()
		if interval <= 0 {
			interval = 30 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if viewOf(rec).Status != appspec.StatusRunning {
					return
				}
				result := mon.Check(ctx)
				rec.mu.Lock()
				rec.state.Healthy = result.Healthy
				t := result.Timestamp
				rec.state.LastHealthCheck = &t
				rec.state.HealthCheckFailures = 0
				if !result.Healthy {
					rec.state.HealthCheckFailures = mon.FailureCount()
				}
				unhealthy := mon.IsUnhealthy()
				name := rec.spec.Name
				hset := rec.spec.Hooks
				hooksLog := rec.logs.Hooks
				if unhealthy {
					rec.state.Status = appspec.StatusErrored
				}
				rec.mu.Unlock()

				if unhealthy {
					endpoint := cfg.HTTPURL
					if endpoint == "" {
						endpoint = cfg.Script
					}
					s.notifyAsync(notify.HealthCheckFailed(appID, name, endpoint))
					hooks.Run(hset, hooks.Context{AppID: appID, AppName: name, Event: hooks.EventError}, hooksLog)
					return
				}
			}
		}
	}()
}

// spawnWatch implements §4.7.9 and resolves spec §9 open question 2: a
// debounced change event calls Restart on the owning app directly, rather
// than only logging it.
func (s *Supervisor) spawnWatch(ctx context.Context, appID int64) {
	rec := s.getRecord(appID)
	if rec == nil {
		return
	}
	root := rec.spec.Cwd
	if root == "" {
		return
	}
	ignore := rec.spec.IgnorePatterns
	if len(ignore) == 0 {
		ignore = watch.DefaultIgnorePatterns
	}
	w, err := watch.New(root, ignore, watch.DefaultDebounce)
	if err != nil {
		s.logger.Warn("watch: failed to start", "app_id", appID, "error", err)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer w.Close()
		events := w.Events()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				sel := selectorForID(appID)
				if _, err := s.Restart(context.Background(), sel); err != nil {
					s.logger.Warn("watch: restart failed", "app_id", appID, "error", err)
				}
				return // the restarted app gets a fresh watch task from startSingle
			}
		}
	}()
}

// metricsTargets feeds the process-wide metrics Collector the set of
// currently-running, process-backed apps (cluster parents have no pid of
// their own and are skipped).
func (s *Supervisor) metricsTargets() []metrics.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]metrics.Target, 0, len(s.apps))
	for _, rec := range s.apps {
		st := viewOf(rec)
		if st.Status != appspec.StatusRunning || st.PID == nil {
			continue
		}
		out = append(out, metrics.Target{AppID: rec.spec.ID, Name: rec.spec.Name, PID: *st.PID})
	}
	return out
}

// onMetricsSample implements the limit-enforcement half of §4.7.10:
// persist each sample, update RunState, and flag apps exceeding
// max_memory_mb/max_uptime_secs for a restart. memoryNotified dedups the
// MemoryLimit notification until usage drops back below the threshold;
// both dedup sets are process-lifetime scoped, reset by the restart itself.
func (s *Supervisor) onMetricsSample(samples []metrics.Sample) {
	for _, sample := range samples {
		rec := s.getRecord(sample.AppID)
		if rec == nil {
			continue
		}
		_ = s.reg.InsertMetric(context.Background(), sample.AppID, metricSampleOf(sample))

		rec.mu.Lock()
		rec.state.CPUPercent = sample.CPUPercent
		rec.state.MemoryBytes = sample.MemoryBytes
		maxMemMB := rec.spec.MaxMemoryMB
		maxUptime := rec.spec.MaxUptimeSecs
		uptime := rec.state.UptimeSecs
		name := rec.spec.Name
		overMemory := maxMemMB != nil && sample.MemoryBytes > uint64(*maxMemMB)*1024*1024
		overUptime := maxUptime != nil && uptime >= *maxUptime
		alreadyNotified := rec.memoryNotified
		if overMemory {
			rec.memoryNotified = true
		} else {
			rec.memoryNotified = false
		}
		rec.mu.Unlock()

		if overMemory && !alreadyNotified && maxMemMB != nil {
			usedMB := sample.MemoryBytes / 1024 / 1024
			s.notifyAsync(notify.MemoryLimitExceeded(sample.AppID, name, usedMB, uint64(*maxMemMB)))
		}
		if (overMemory || overUptime) && s.claimPendingRestart(sample.AppID) {
			go func(id int64) {
				defer s.clearPendingRestart(id)
				if err := s.restartRecord(context.Background(), s.getRecord(id)); err != nil {
					s.logger.Warn("limit-triggered restart failed", "app_id", id, "error", err)
				}
			}(sample.AppID)
		}
	}
}
