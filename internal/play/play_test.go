package play

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlay() *Play {
	exp := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)
	tp := decimal.RequireFromString("5.00")
	return &Play{
		ID:       "p-1",
		Symbol:   "SPY",
		Strategy: "premium_swing",
		Contract: OptionContract{
			Type:       Call,
			Strike:     decimal.RequireFromString("450"),
			Expiration: exp,
			Ratio:      1,
		},
		Entry: EntryCondition{
			TargetPrice: decimal.RequireFromString("100.00"),
			Buffer:      decimal.RequireFromString("0.50"),
			OrderType:   "limit",
		},
		Exit: ExitCondition{
			TakeProfit: &ExitTarget{Kind: TargetPremium, Value: tp},
		},
		State:     StateNew,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateNew, StatePendingOpening, true},
		{StateNew, StateExpired, true},
		{StateNew, StateOpen, false},
		{StatePendingOpening, StateOpen, true},
		{StatePendingOpening, StateNew, true}, // timeout revert
		{StateOpen, StatePendingClosing, true},
		{StateOpen, StateClosed, false},
		{StatePendingClosing, StateClosed, true},
		{StatePendingClosing, StateOpen, true}, // timeout revert
		{StateClosed, StateNew, false},
		{StateExpired, StateNew, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s → %s", tc.from, tc.to)
	}
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, StateClosed.Terminal())
	assert.True(t, StateExpired.Terminal())
	assert.False(t, StateOpen.Terminal())
}

func TestOSI(t *testing.T) {
	c := OptionContract{
		Type:       Call,
		Strike:     decimal.RequireFromString("450"),
		Expiration: time.Date(2025, 9, 19, 0, 0, 0, 0, time.UTC),
		Ratio:      1,
	}
	assert.Equal(t, "SPY   250919C00450000", c.OSI("SPY"))

	p := OptionContract{
		Type:       Put,
		Strike:     decimal.RequireFromString("447.50"),
		Expiration: time.Date(2025, 9, 19, 0, 0, 0, 0, time.UTC),
		Ratio:      1,
	}
	assert.Equal(t, "SPY   250919P00447500", p.OSI("SPY"))
}

func TestValidate(t *testing.T) {
	p := samplePlay()
	require.NoError(t, p.Validate())

	missing := samplePlay()
	missing.Symbol = ""
	assert.Error(t, missing.Validate())

	badState := samplePlay()
	badState.State = "limbo"
	assert.Error(t, badState.Validate())

	noExit := samplePlay()
	noExit.Exit = ExitCondition{}
	assert.Error(t, noExit.Validate())

	zeroLeg := samplePlay()
	zeroLeg.Legs = []OptionContract{{Type: Put, Strike: decimal.RequireFromString("445"), Expiration: zeroLeg.Contract.Expiration, Ratio: 0}}
	assert.Error(t, zeroLeg.Validate())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := samplePlay()
	raw, err := Encode(p)
	require.NoError(t, err)

	back, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, p.ID, back.ID)
	assert.Equal(t, p.State, back.State)
	assert.True(t, p.Entry.TargetPrice.Equal(back.Entry.TargetPrice))
	require.NotNil(t, back.Exit.TakeProfit)
	assert.True(t, p.Exit.TakeProfit.Value.Equal(back.Exit.TakeProfit.Value))
}

func TestDecodeRejectsSchemaViolations(t *testing.T) {
	_, err := Decode([]byte(`{"id": "x"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}
