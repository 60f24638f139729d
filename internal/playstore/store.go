// Package playstore persists plays as one JSON document per play, grouped
// into one directory per lifecycle state. It is the only component allowed
// to move or rewrite play files.
package playstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"optflow/internal/logger"
	"optflow/internal/play"
)

var (
	ErrNotFound          = errors.New("playstore: play not found")
	ErrInvalidTransition = errors.New("playstore: illegal state transition")
	// ErrDuplicateID is returned by Recover when two files claim the same
	// play id. This is the one unrecoverable integrity failure: startup
	// must halt for manual intervention.
	ErrDuplicateID = errors.New("playstore: duplicate play id")
)

// AccountContext scopes a store to one brokerage account's data directory.
// It is passed explicitly at construction; nothing here is read from
// ambient state.
type AccountContext struct {
	Account string
	DataDir string
}

func (a AccountContext) root() string {
	return filepath.Join(a.DataDir, a.Account, "plays")
}

// Store is a crash-safe file store for plays. All mutating operations are
// serialized by a single mutex; per-play serialization follows from
// strategies owning disjoint plays.
type Store struct {
	mu   sync.Mutex
	root string
}

// New creates the state directories if needed and returns a store rooted at
// the account's play directory.
func New(acct AccountContext) (*Store, error) {
	if strings.TrimSpace(acct.Account) == "" {
		return nil, fmt.Errorf("playstore: account name is required")
	}
	if strings.TrimSpace(acct.DataDir) == "" {
		return nil, fmt.Errorf("playstore: data dir is required")
	}
	root := acct.root()
	for _, st := range play.States() {
		if err := os.MkdirAll(filepath.Join(root, st.String()), 0o755); err != nil {
			return nil, fmt.Errorf("playstore: creating %s dir: %w", st, err)
		}
	}
	return &Store{root: root}, nil
}

func (s *Store) path(st play.State, id string) string {
	return filepath.Join(s.root, st.String(), id+".json")
}

// Create validates the play and writes it into its state directory. A play
// with no state starts in NEW; a missing creation timestamp is filled in.
func (s *Store) Create(p *play.Play) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.State == "" {
		p.State = play.StateNew
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	raw, err := play.Encode(p)
	if err != nil {
		return err
	}
	dst := s.path(p.State, p.ID)
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("playstore: play %s already exists", p.ID)
	}
	return s.writeAtomic(dst, raw)
}

// Get locates a play by id, scanning state directories in lifecycle order.
func (s *Store) Get(id string) (*play.Play, error) {
	for _, st := range play.States() {
		raw, err := os.ReadFile(s.path(st, id))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("playstore: reading play %s: %w", id, err)
		}
		return play.Decode(raw)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// ListByState returns the plays of one strategy in the given state, ordered
// by creation time then id so evaluation order is deterministic. An empty
// strategy matches every play.
func (s *Store) ListByState(strategy string, st play.State) ([]*play.Play, error) {
	dir := filepath.Join(s.root, st.String())
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("playstore: listing %s: %w", st, err)
	}
	var plays []*play.Play
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("playstore: reading %s: %w", entry.Name(), err)
		}
		p, err := play.Decode(raw)
		if err != nil {
			logger.Errorf("playstore: skipping unreadable record %s/%s: %v", st, entry.Name(), err)
			continue
		}
		if strategy != "" && p.Strategy != strategy {
			continue
		}
		plays = append(plays, p)
	}
	sort.Slice(plays, func(i, j int) bool {
		if !plays[i].CreatedAt.Equal(plays[j].CreatedAt) {
			return plays[i].CreatedAt.Before(plays[j].CreatedAt)
		}
		return plays[i].ID < plays[j].ID
	})
	return plays, nil
}

// Transition moves a play to target, applying patch to the record. Order of
// operations is deliberate: validate the patched record, move the file,
// then write the new contents. If the move fails nothing has been written
// and the original file is untouched; if the write after a successful move
// fails, the file sits at the new location with stale contents, which the
// startup recovery pass relocates. At no point do two copies exist.
func (s *Store) Transition(p *play.Play, target play.State, patch func(*play.Play)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !play.CanTransition(p.State, target) {
		return fmt.Errorf("%w: %s → %s (play %s)", ErrInvalidTransition, p.State, target, p.ID)
	}

	next := *p
	if patch != nil {
		patch(&next)
	}
	next.State = target
	next.UpdatedAt = time.Now().UTC()
	raw, err := play.Encode(&next)
	if err != nil {
		return fmt.Errorf("playstore: transition %s → %s aborted: %w", p.State, target, err)
	}

	src := s.path(p.State, p.ID)
	dst := s.path(target, p.ID)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("playstore: moving play %s to %s: %w", p.ID, target, err)
	}
	if err := os.WriteFile(dst, raw, 0o644); err != nil {
		// The file moved but still carries the previous contents. Recovery
		// relocates it by its embedded state on next startup.
		return fmt.Errorf("playstore: play %s moved to %s but write failed: %w", p.ID, target, err)
	}
	*p = next
	return nil
}

// Update rewrites a play in place without a state change (retry counters,
// flags, order ids). The record is validated first.
func (s *Store) Update(p *play.Play) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.UpdatedAt = time.Now().UTC()
	raw, err := play.Encode(p)
	if err != nil {
		return err
	}
	dst := s.path(p.State, p.ID)
	if _, err := os.Stat(dst); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, p.ID)
	}
	return s.writeAtomic(dst, raw)
}

// Counts reports the number of plays per state, for the monitoring surface.
func (s *Store) Counts() (map[play.State]int, error) {
	counts := make(map[play.State]int, len(play.States()))
	for _, st := range play.States() {
		entries, err := os.ReadDir(filepath.Join(s.root, st.String()))
		if err != nil {
			return nil, err
		}
		n := 0
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
				n++
			}
		}
		counts[st] = n
	}
	return counts, nil
}

func (s *Store) writeAtomic(dst string, raw []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".play-*.tmp")
	if err != nil {
		return fmt.Errorf("playstore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("playstore: writing %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("playstore: closing %s: %w", dst, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("playstore: replacing %s: %w", dst, err)
	}
	return nil
}
