package playstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"optflow/internal/logger"
	"optflow/internal/play"
)

// Recover scans every state directory and relocates records whose embedded
// state disagrees with their containing directory, healing residue from an
// abnormal exit mid-transition. Stale temp files are removed. Two files
// claiming the same play id cannot be healed automatically and abort
// startup with ErrDuplicateID.
func (s *Store) Recover() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]string) // play id → path first seen at
	relocated := 0
	for _, st := range play.States() {
		dir := filepath.Join(s.root, st.String())
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("playstore: recovery scan of %s: %w", st, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			path := filepath.Join(dir, name)
			if strings.HasPrefix(name, ".play-") && strings.HasSuffix(name, ".tmp") {
				logger.Warnf("playstore: removing stale temp file %s", path)
				os.Remove(path)
				continue
			}
			if !strings.HasSuffix(name, ".json") {
				continue
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("playstore: recovery read %s: %w", path, err)
			}
			p, err := play.Decode(raw)
			if err != nil {
				logger.Errorf("playstore: recovery found invalid record %s: %v", path, err)
				continue
			}
			if prev, dup := seen[p.ID]; dup {
				if prev == path {
					// A record relocated earlier in this scan; not a duplicate.
					continue
				}
				return fmt.Errorf("%w: %s claimed by %s and %s", ErrDuplicateID, p.ID, prev, path)
			}
			seen[p.ID] = path
			if p.State == st {
				continue
			}
			// The embedded state field is authoritative: a write that
			// completed carries the intended state, while a move without a
			// write left the previous contents behind.
			dst := s.path(p.State, p.ID)
			if _, err := os.Stat(dst); err == nil {
				return fmt.Errorf("%w: %s claimed by %s and %s", ErrDuplicateID, p.ID, path, dst)
			}
			if err := os.Rename(path, dst); err != nil {
				return fmt.Errorf("playstore: relocating %s to %s: %w", path, p.State, err)
			}
			seen[p.ID] = dst
			logger.Warnf("playstore: relocated play %s from %s to %s", p.ID, st, p.State)
			relocated++
		}
	}
	if relocated > 0 {
		logger.Infof("playstore: recovery relocated %d record(s)", relocated)
	}
	return nil
}
