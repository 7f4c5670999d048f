package supervisor

import (
	"context"
	"time"

	"github.com/oxidepm/oxidepm/internal/apperr"
	"github.com/oxidepm/oxidepm/internal/appspec"
	"github.com/oxidepm/oxidepm/internal/health"
	"github.com/oxidepm/oxidepm/internal/selector"
)

const (
	reloadHealthPollInterval = 500 * time.Millisecond
	reloadHealthDeadline     = 30 * time.Second
)

// Reload implements the zero-downtime Reload protocol (§4.7.6) for every
// record sel matches: cluster parents take the rolling per-child path,
// everything else takes the single-instance build-then-swap path.
func (s *Supervisor) Reload(ctx context.Context, sel selector.Selector) (int, error) {
	recs := s.selectRecords(sel)
	count := 0
	for _, rec := range recs {
		if rec.isClusterParent {
			n, err := s.reloadCluster(ctx, rec)
			if err != nil {
				return count, err
			}
			count += n
			continue
		}
		if err := s.reloadSingle(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// uniqueTempName resolves spec §9 open question 4: a prior Reload that
// crashed before renaming its replacement back could leave a stale
// "{name}-reload" row behind. Rather than let a fresh Reload collide with
// it (InsertApp would return AppAlreadyExists), probe forward to the next
// free "{name}-reload-N" suffix.
func (s *Supervisor) uniqueTempName(ctx context.Context, name string) (string, error) {
	candidate := name + "-reload"
	for i := 2; ; i++ {
		if s.getRecordByName(candidate) == nil {
			exists, err := s.reg.ExistsByName(ctx, candidate)
			if err != nil {
				return "", err
			}
			if !exists {
				return candidate, nil
			}
		}
		candidate = name + "-reload-" + itoa(i)
		if i > 1000 {
			return "", apperr.New(apperr.ConfigError, "could not allocate a reload temp name for "+name)
		}
	}
}

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoa(i/10) + string(rune('0'+i%10))
}

// waitHealthy polls cfg every 500ms up to 30s, or - when no health check is
// configured - simply sleeps 500ms as a settle proxy, matching §4.7.6's
// "or sleeps 500ms as proxy if no health check" fallback.
func waitHealthy(ctx context.Context, cfg *appspec.HealthCheck) bool {
	if !cfg.Configured() {
		time.Sleep(reloadHealthPollInterval)
		return true
	}
	checker := health.NewChecker()
	deadline := time.Now().Add(reloadHealthDeadline)
	for time.Now().Before(deadline) {
		if checker.Check(ctx, cfg).Healthy {
			return true
		}
		time.Sleep(reloadHealthPollInterval)
	}
	return false
}

// reloadSingle builds replacement under a temporary name, verifies it's
// healthy, then swaps it in for the original - stopping+deleting the old
// instance and renaming the new one back to the original name.
func (s *Supervisor) reloadSingle(ctx context.Context, rec *appRecord) error {
	oldSpec := specOf(rec)
	tempName, err := s.uniqueTempName(ctx, oldSpec.Name)
	if err != nil {
		return err
	}

	replacement := oldSpec.Clone()
	replacement.ID = 0
	replacement.Name = tempName

	if err := s.reg.InsertApp(ctx, replacement); err != nil {
		return err
	}
	newState, err := s.startSingle(ctx, replacement)
	if err != nil {
		_ = s.reg.DeleteApp(ctx, replacement.ID)
		return err
	}
	newRec := s.getRecord(newState.AppID)

	if !waitHealthy(ctx, oldSpec.HealthCheck) {
		if newRec != nil {
			_ = s.stopRecord(ctx, newRec, false)
			s.removeRecord(newRec.spec.ID)
			_ = s.reg.DeleteApp(ctx, newRec.spec.ID)
		}
		return apperr.New(apperr.HealthCheckFailed, "reload replacement failed health check")
	}

	_ = s.stopRecord(ctx, rec, false)
	s.removeRecord(oldSpec.ID)
	_ = s.reg.DeleteApp(ctx, oldSpec.ID)

	if newRec != nil {
		newRec.mu.Lock()
		newRec.spec.Name = oldSpec.Name
		newRec.mu.Unlock()
		s.renameRecord(newRec.spec.ID, tempName, oldSpec.Name)
		_ = s.reg.UpdateApp(ctx, specOf(newRec))
	}
	return nil
}

// reloadCluster performs the rolling replacement per child in order,
// best-effort: a child whose replacement fails health is skipped (left
// running on its old instance) rather than aborting the whole rollout.
func (s *Supervisor) reloadCluster(ctx context.Context, parent *appRecord) (int, error) {
	childIDs := viewOf(parent).ClusterInstanceIDs
	replaced := 0
	newIDs := make([]int64, 0, len(childIDs))

	for _, childID := range childIDs {
		child := s.getRecord(childID)
		if child == nil {
			continue
		}
		oldSpec := specOf(child)

		replacement := oldSpec.Clone()
		replacement.ID = 0
		replacement.Name = oldSpec.Name + "-reload"

		if err := s.reg.InsertApp(ctx, replacement); err != nil {
			newIDs = append(newIDs, childID)
			continue
		}
		newState, err := s.startSingle(ctx, replacement)
		if err != nil {
			_ = s.reg.DeleteApp(ctx, replacement.ID)
			newIDs = append(newIDs, childID)
			continue
		}
		newRec := s.getRecord(newState.AppID)

		if !waitHealthy(ctx, oldSpec.HealthCheck) {
			if newRec != nil {
				_ = s.stopRecord(ctx, newRec, false)
				s.removeRecord(newRec.spec.ID)
				_ = s.reg.DeleteApp(ctx, newRec.spec.ID)
			}
			newIDs = append(newIDs, childID)
			continue
		}

		_ = s.stopRecord(ctx, child, false)
		s.removeRecord(oldSpec.ID)
		_ = s.reg.DeleteApp(ctx, oldSpec.ID)

		newRec.mu.Lock()
		newRec.spec.Name = oldSpec.Name
		newRec.isClusterChild = true
		newRec.parentID = parent.spec.ID
		newRec.mu.Unlock()
		s.renameRecord(newRec.spec.ID, replacement.Name, oldSpec.Name)
		_ = s.reg.UpdateApp(ctx, specOf(newRec))

		newIDs = append(newIDs, newRec.spec.ID)
		replaced++
	}

	parent.mu.Lock()
	parent.state.ClusterInstanceIDs = newIDs
	parent.mu.Unlock()

	return replaced, nil
}
