package playstore

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"optflow/internal/play"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(AccountContext{Account: "test", DataDir: t.TempDir()})
	require.NoError(t, err)
	return s
}

func testPlay(id string) *play.Play {
	return &play.Play{
		ID:       id,
		Symbol:   "SPY",
		Strategy: "premium_swing",
		Contract: play.OptionContract{
			Type:       play.Call,
			Strike:     decimal.RequireFromString("450"),
			Expiration: time.Now().UTC().AddDate(0, 1, 0),
			Ratio:      1,
		},
		Entry: play.EntryCondition{
			TargetPrice: decimal.RequireFromString("100.00"),
			Buffer:      decimal.RequireFromString("0.50"),
			OrderType:   "limit",
		},
		Exit: play.ExitCondition{
			TakeProfit: &play.ExitTarget{Kind: play.TargetPremium, Value: decimal.RequireFromString("5.00")},
			StopLoss:   &play.ExitTarget{Kind: play.TargetPercent, Value: decimal.RequireFromString("25")},
		},
	}
}

// countFiles returns how many record files exist for id across every state
// directory, and the state directory holding the (last seen) copy.
func countFiles(t *testing.T, s *Store, id string) (int, play.State) {
	t.Helper()
	n := 0
	var at play.State
	for _, st := range play.States() {
		if _, err := os.Stat(s.path(st, id)); err == nil {
			n++
			at = st
		}
	}
	return n, at
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	p := testPlay("p-1")
	require.NoError(t, s.Create(p))
	assert.Equal(t, play.StateNew, p.State)

	got, err := s.Get("p-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", got.ID)
	assert.Equal(t, play.StateNew, got.State)

	_, err = s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, s.Create(testPlay("p-1")), "duplicate create must fail")
}

func TestListByStateFiltersAndOrders(t *testing.T) {
	s := newTestStore(t)
	a := testPlay("p-a")
	a.CreatedAt = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	b := testPlay("p-b")
	b.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	other := testPlay("p-c")
	other.Strategy = "vertical_spread"
	other.Legs = []play.OptionContract{{
		Type: play.Call, Strike: decimal.RequireFromString("455"),
		Expiration: other.Contract.Expiration, Ratio: -1,
	}}
	require.NoError(t, s.Create(a))
	require.NoError(t, s.Create(b))
	require.NoError(t, s.Create(other))

	got, err := s.ListByState("premium_swing", play.StateNew)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p-b", got[0].ID, "earlier creation sorts first")
	assert.Equal(t, "p-a", got[1].ID)

	all, err := s.ListByState("", play.StateNew)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTransitionMovesFile(t *testing.T) {
	s := newTestStore(t)
	p := testPlay("p-1")
	require.NoError(t, s.Create(p))

	require.NoError(t, s.Transition(p, play.StatePendingOpening, func(np *play.Play) {
		np.EntryOrderID = "ord-1"
	}))
	assert.Equal(t, play.StatePendingOpening, p.State)
	assert.Equal(t, "ord-1", p.EntryOrderID)

	n, at := countFiles(t, s, "p-1")
	assert.Equal(t, 1, n, "exactly one file must represent the play")
	assert.Equal(t, play.StatePendingOpening, at)

	got, err := s.Get("p-1")
	require.NoError(t, err)
	assert.Equal(t, play.StatePendingOpening, got.State)
	assert.Equal(t, "ord-1", got.EntryOrderID)
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	s := newTestStore(t)
	p := testPlay("p-1")
	require.NoError(t, s.Create(p))

	err := s.Transition(p, play.StateClosed, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, play.StateNew, p.State, "failed transition leaves state untouched")

	n, at := countFiles(t, s, "p-1")
	assert.Equal(t, 1, n)
	assert.Equal(t, play.StateNew, at)
}

func TestTransitionAbortsOnInvalidPatch(t *testing.T) {
	s := newTestStore(t)
	p := testPlay("p-1")
	require.NoError(t, s.Create(p))

	err := s.Transition(p, play.StatePendingOpening, func(np *play.Play) {
		np.Symbol = "" // integrity check must veto this before any file op
	})
	require.Error(t, err)
	assert.Equal(t, play.StateNew, p.State)

	n, at := countFiles(t, s, "p-1")
	assert.Equal(t, 1, n)
	assert.Equal(t, play.StateNew, at)
}

// TestSingleFileInvariantUnderRandomTransitions walks random legal
// lifecycle edges and asserts after every step that exactly one file
// represents the play and that it sits in the directory matching its state.
func TestSingleFileInvariantUnderRandomTransitions(t *testing.T) {
	s := newTestStore(t)
	p := testPlay("p-1")
	require.NoError(t, s.Create(p))

	next := map[play.State][]play.State{
		play.StateNew:            {play.StatePendingOpening},
		play.StatePendingOpening: {play.StateOpen, play.StateNew},
		play.StateOpen:           {play.StatePendingClosing},
		play.StatePendingClosing: {play.StateClosed, play.StateOpen},
	}
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200 && !p.State.Terminal(); i++ {
		candidates := next[p.State]
		target := candidates[rng.Intn(len(candidates))]
		require.NoError(t, s.Transition(p, target, nil))

		n, at := countFiles(t, s, "p-1")
		require.Equal(t, 1, n, "step %d: duplicate or orphan", i)
		require.Equal(t, p.State, at, "step %d: directory disagrees with state", i)
	}
}

func TestRecoverRelocatesMismatchedRecord(t *testing.T) {
	s := newTestStore(t)
	p := testPlay("p-1")
	require.NoError(t, s.Create(p))
	require.NoError(t, s.Transition(p, play.StatePendingOpening, nil))

	// Simulate a crash where the move happened but the rewrite did not:
	// a record whose contents say open sits in the pending_opening dir.
	p.State = play.StateOpen
	raw, err := play.Encode(p)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.path(play.StatePendingOpening, p.ID), raw, 0o644))

	require.NoError(t, s.Recover())

	n, at := countFiles(t, s, "p-1")
	assert.Equal(t, 1, n)
	assert.Equal(t, play.StateOpen, at, "embedded state is authoritative")
}

func TestRecoverFatalOnDuplicateID(t *testing.T) {
	s := newTestStore(t)
	p := testPlay("p-1")
	require.NoError(t, s.Create(p))

	// Hand-craft a second file claiming the same id in another state dir.
	dup := testPlay("p-1")
	dup.State = play.StateOpen
	dup.CreatedAt = time.Now().UTC()
	dup.UpdatedAt = dup.CreatedAt
	raw, err := play.Encode(dup)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.path(play.StateOpen, dup.ID), raw, 0o644))

	assert.ErrorIs(t, s.Recover(), ErrDuplicateID)
}

func TestRecoverRemovesStaleTempFiles(t *testing.T) {
	s := newTestStore(t)
	stale := filepath.Join(s.root, play.StateNew.String(), ".play-123.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("{"), 0o644))

	require.NoError(t, s.Recover())
	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}
