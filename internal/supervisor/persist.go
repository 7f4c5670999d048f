package supervisor

import (
	"context"
	"encoding/json"
	"os"

	"github.com/oxidepm/oxidepm/internal/apperr"
	"github.com/oxidepm/oxidepm/internal/appspec"
	"github.com/oxidepm/oxidepm/internal/selector"
)

// Save writes every registered spec to path as pretty-printed JSON, for a
// later Resurrect to replay. Grounded on
// original_source/crates/oxidepmd/src/supervisor.rs's save/saved_path.
func (s *Supervisor) Save(ctx context.Context, path string) (int, error) {
	specs, err := s.reg.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	b, err := json.MarshalIndent(specs, "", "  ")
	if err != nil {
		return 0, apperr.Wrap(apperr.ConfigError, "marshal saved apps", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return 0, apperr.Wrap(apperr.FileNotFound, "write saved apps", err)
	}
	return len(specs), nil
}

// Resurrect reads path (written by a prior Save) and starts every spec
// whose name isn't already registered, skipping the rest - matching the
// original's "already in database" guard.
func (s *Supervisor) Resurrect(ctx context.Context, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, apperr.Wrap(apperr.FileNotFound, "read saved apps", err)
	}
	var specs []*appspec.AppSpec
	if err := json.Unmarshal(b, &specs); err != nil {
		return 0, apperr.Wrap(apperr.ConfigError, "unmarshal saved apps", err)
	}

	count := 0
	for _, spec := range specs {
		exists, err := s.reg.ExistsByName(ctx, spec.Name)
		if err != nil || exists {
			continue
		}
		spec.ID = 0
		if _, err := s.Start(ctx, spec); err != nil {
			s.logger.Warn("resurrect: failed to start", "name", spec.Name, "error", err)
			continue
		}
		count++
	}
	return count, nil
}

// Flush truncates the live stdout/stderr/hooks log files for every record
// sel matches, leaving rotated backups untouched.
func (s *Supervisor) Flush(sel selector.Selector) (int, error) {
	recs := s.selectRecords(sel)
	count := 0
	for _, rec := range recs {
		rec.mu.Lock()
		logs := rec.logs
		rec.mu.Unlock()
		if logs == nil {
			continue
		}
		if err := logs.Flush(); err == nil {
			count++
		}
	}
	return count, nil
}
