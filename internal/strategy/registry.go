package strategy

import (
	"fmt"
	"sort"

	"optflow/internal/playbook"
)

// Settings is the per-strategy slice of configuration handed to a
// constructor: the shared knobs plus the strategy's free-form params block.
type Settings struct {
	Priority int
	Params   map[string]any
	Books    *playbook.Registry
}

// Constructor builds an engine from its settings.
type Constructor func(s Settings) (Engine, error)

// Builtin is the compile-time strategy table. Adding a strategy means
// adding a row here; no reflection, no scanning.
func Builtin() map[string]Constructor {
	return map[string]Constructor{
		"premium_swing":   NewSwing,
		"vertical_spread": NewSpread,
	}
}

// Build instantiates one registered strategy by name.
func Build(name string, s Settings) (Engine, error) {
	ctor, ok := Builtin()[name]
	if !ok {
		return nil, fmt.Errorf("strategy: unknown strategy %q (known: %v)", name, Known())
	}
	return ctor(s)
}

// Known lists registered strategy names, sorted.
func Known() []string {
	names := make([]string, 0, len(Builtin()))
	for name := range Builtin() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
