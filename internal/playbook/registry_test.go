package playbook

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"optflow/internal/play"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBooks = `playbooks:
  conservative:
    description: tight stops, quick exits
    entry_buffer: "0.25"
    order_type: limit
    take_profit:
      kind: percent
      value: "20"
    stop_loss:
      kind: percent
      value: "10"
    max_hold_hours: 48
  runner:
    entry_buffer: "1.00"
    take_profit:
      kind: premium
      value: "8.00"
`

func writeBooks(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "books.yaml"), []byte(content), 0o644))
	return dir
}

func TestLoadTemplates(t *testing.T) {
	r, err := Load(writeBooks(t, sampleBooks))
	require.NoError(t, err)
	assert.Equal(t, []string{"conservative", "runner"}, r.Names())

	tpl, ok := r.Get("conservative")
	require.True(t, ok)
	assert.Equal(t, "limit", tpl.OrderType)
	assert.Equal(t, 48, tpl.MaxHoldHours)
	require.NotNil(t, tpl.StopLoss)
	assert.Equal(t, play.TargetPercent, tpl.StopLoss.Kind)
	assert.True(t, tpl.EntryBuffer.Equal(decimal.RequireFromString("0.25")))

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	bad := `playbooks:
  broken:
    order_type: stop
`
	_, err := Load(writeBooks(t, bad))
	assert.Error(t, err, "order_type outside the enum must fail")

	badValue := `playbooks:
  broken:
    take_profit:
      kind: percent
`
	_, err = Load(writeBooks(t, badValue))
	assert.Error(t, err, "a target without a value must fail")
}

func TestLoadEmptyDirIsOptional(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, r.Names())

	r, err = Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, r.Names())
}

func TestApplyFillsOnlyUnsetFields(t *testing.T) {
	r, err := Load(writeBooks(t, sampleBooks))
	require.NoError(t, err)
	tpl, ok := r.Get("conservative")
	require.True(t, ok)

	p := &play.Play{
		ID:       "p-1",
		Symbol:   "SPY",
		Playbook: "conservative",
		Contract: play.OptionContract{
			Type:       play.Call,
			Strike:     decimal.RequireFromString("450"),
			Expiration: time.Now().AddDate(0, 1, 0),
			Ratio:      1,
		},
		Entry: play.EntryCondition{
			TargetPrice: decimal.RequireFromString("100"),
			Buffer:      decimal.RequireFromString("0.50"), // play's own value wins
		},
		Exit: play.ExitCondition{
			TakeProfit: &play.ExitTarget{Kind: play.TargetPremium, Value: decimal.RequireFromString("5.00")},
		},
	}
	tpl.Apply(p)

	assert.True(t, p.Entry.Buffer.Equal(decimal.RequireFromString("0.50")),
		"an explicit play value is never overridden")
	assert.Equal(t, "limit", p.Entry.OrderType, "unset order type comes from the template")
	assert.Equal(t, play.TargetPremium, p.Exit.TakeProfit.Kind, "play take-profit kept")
	require.NotNil(t, p.Exit.StopLoss, "unset stop-loss filled from the template")
	assert.Equal(t, 48, p.Exit.MaxHoldHours)
}

func TestDuplicateTemplateNameFails(t *testing.T) {
	dir := t.TempDir()
	one := `playbooks:
  dup:
    entry_buffer: "0.25"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(one), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(one), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}
