// Package bots implements the livebot pool: sessions that occupy
// seats at cash tables, decide actions via a pluggable strategy, and
// are spawned and retired under rate limiting by an orchestrator.
package bots

import (
	"math/rand"

	"pokercore/internal/gameloop"
)

// Strategy decides a bot's action from the context the game loop hands
// it. Implementations must be side-effect free and safe for concurrent
// use across tables.
type Strategy interface {
	Name() string
	Decide(ctx gameloop.GameContext) gameloop.Decision
}

var registry = map[string]func() Strategy{}

// Register adds a named strategy factory to the package-level
// registry, populated at init().
func Register(name string, factory func() Strategy) {
	registry[name] = factory
}

// NewStrategy returns a fresh strategy instance by name, or the balanced
// strategy if name is unknown.
func NewStrategy(name string) Strategy {
	if factory, ok := registry[name]; ok {
		return factory()
	}
	return registry["balanced"]()
}

// Names lists every registered strategy, used to assign a random
// strategy to newly spawned bots.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}

func init() {
	Register("balanced", func() Strategy { return balancedStrategy{} })
	Register("aggressive", func() Strategy { return aggressiveStrategy{} })
	Register("conservative", func() Strategy { return conservativeStrategy{} })
	Register("deterministic", func() Strategy { return deterministicStrategy{} })
}

func hasAction(actions []string, want string) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}

// deterministicStrategy always checks/calls, never raises. Useful for
// reproducible tests.
type deterministicStrategy struct{}

func (deterministicStrategy) Name() string { return "deterministic" }

func (deterministicStrategy) Decide(ctx gameloop.GameContext) gameloop.Decision {
	if hasAction(ctx.Actions, "check") {
		return gameloop.Decision{Action: "check"}
	}
	return gameloop.Decision{Action: "call"}
}

// balancedStrategy calls most of the time, raises occasionally with a
// pot-sized bet, and folds to large bets relative to its stack.
type balancedStrategy struct{}

func (balancedStrategy) Name() string { return "balanced" }

func (balancedStrategy) Decide(ctx gameloop.GameContext) gameloop.Decision {
	if hasAction(ctx.Actions, "check") {
		if rand.Intn(100) < 15 && hasAction(ctx.Actions, "raise") {
			return raiseToward(ctx, ctx.Pot)
		}
		return gameloop.Decision{Action: "check"}
	}
	if ctx.CallAmount > ctx.Stack/3 && rand.Intn(100) < 60 {
		return gameloop.Decision{Action: "fold"}
	}
	if rand.Intn(100) < 20 && hasAction(ctx.Actions, "raise") {
		return raiseToward(ctx, ctx.Pot)
	}
	return gameloop.Decision{Action: "call"}
}

// aggressiveStrategy raises frequently and folds rarely.
type aggressiveStrategy struct{}

func (aggressiveStrategy) Name() string { return "aggressive" }

func (aggressiveStrategy) Decide(ctx gameloop.GameContext) gameloop.Decision {
	if hasAction(ctx.Actions, "raise") && rand.Intn(100) < 45 {
		return raiseToward(ctx, ctx.Pot*2)
	}
	if hasAction(ctx.Actions, "check") {
		return gameloop.Decision{Action: "check"}
	}
	if ctx.CallAmount > ctx.Stack && rand.Intn(100) < 50 {
		return gameloop.Decision{Action: "fold"}
	}
	return gameloop.Decision{Action: "call"}
}

// conservativeStrategy rarely raises and folds to any meaningful bet.
type conservativeStrategy struct{}

func (conservativeStrategy) Name() string { return "conservative" }

func (conservativeStrategy) Decide(ctx gameloop.GameContext) gameloop.Decision {
	if hasAction(ctx.Actions, "check") {
		return gameloop.Decision{Action: "check"}
	}
	if ctx.CallAmount > ctx.Stack/6 {
		return gameloop.Decision{Action: "fold"}
	}
	if rand.Intn(100) < 5 && hasAction(ctx.Actions, "raise") {
		return raiseToward(ctx, ctx.MinRaise)
	}
	return gameloop.Decision{Action: "call"}
}

// raiseToward clamps a desired raise-to amount into [MinRaise, MaxRaise]
// and falls back to a call if raising isn't actually legal.
func raiseToward(ctx gameloop.GameContext, amount int) gameloop.Decision {
	if !hasAction(ctx.Actions, "raise") {
		return gameloop.Decision{Action: "call"}
	}
	if amount < ctx.MinRaise {
		amount = ctx.MinRaise
	}
	if amount > ctx.MaxRaise {
		amount = ctx.MaxRaise
	}
	return gameloop.Decision{Action: "raise", Amount: amount}
}
