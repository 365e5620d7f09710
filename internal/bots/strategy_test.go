package bots

import (
	"testing"

	"pokercore/internal/gameloop"
)

func TestDeterministicStrategyChecksOrCalls(t *testing.T) {
	s := NewStrategy("deterministic")

	d := s.Decide(gameloop.GameContext{Actions: []string{"check", "raise"}})
	if d.Action != "check" {
		t.Errorf("expected check, got %s", d.Action)
	}

	d = s.Decide(gameloop.GameContext{Actions: []string{"fold", "call", "raise"}})
	if d.Action != "call" {
		t.Errorf("expected call, got %s", d.Action)
	}
}

func TestConservativeStrategyFoldsToBigBets(t *testing.T) {
	s := NewStrategy("conservative")
	ctx := gameloop.GameContext{
		Actions:    []string{"fold", "call", "raise"},
		CallAmount: 500,
		Stack:      600,
		MinRaise:   20,
		MaxRaise:   600,
	}
	d := s.Decide(ctx)
	if d.Action != "fold" {
		t.Errorf("expected fold against an overbet, got %s", d.Action)
	}
}

func TestRaiseTowardClampsToLegalRange(t *testing.T) {
	ctx := gameloop.GameContext{
		Actions:  []string{"check", "raise"},
		MinRaise: 40,
		MaxRaise: 100,
	}
	d := raiseToward(ctx, 10)
	if d.Action != "raise" || d.Amount != 40 {
		t.Errorf("expected raise clamped to min 40, got %+v", d)
	}

	d = raiseToward(ctx, 1000)
	if d.Action != "raise" || d.Amount != 100 {
		t.Errorf("expected raise clamped to max 100, got %+v", d)
	}
}

func TestRaiseTowardFallsBackToCallWhenRaiseIllegal(t *testing.T) {
	ctx := gameloop.GameContext{Actions: []string{"call"}}
	d := raiseToward(ctx, 50)
	if d.Action != "call" {
		t.Errorf("expected fallback to call, got %s", d.Action)
	}
}

func TestNewUnknownStrategyFallsBackToBalanced(t *testing.T) {
	s := NewStrategy("does-not-exist")
	if s.Name() != "balanced" {
		t.Errorf("expected balanced fallback, got %s", s.Name())
	}
}
