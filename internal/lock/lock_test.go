package lock

import (
	"testing"
	"time"

	"pokercore/internal/config"
)

func TestScopedKeyHierarchy(t *testing.T) {
	cases := []struct {
		scope    config.LockScope
		resource string
		want     string
	}{
		{config.ScopeTournament, "", "lock:tournament:t1"},
		{config.ScopeTables, "", "lock:tournament:t1:tables"},
		{config.ScopeTable, "tbl-3", "lock:tournament:t1:table:tbl-3"},
		{config.ScopePlayer, "u9", "lock:tournament:t1:player:u9"},
		{config.ScopeRanking, "", "lock:tournament:t1:ranking"},
		{config.ScopeBlind, "", "lock:tournament:t1:blind"},
	}
	for _, c := range cases {
		if got := config.ScopedLockKey("t1", c.scope, c.resource); got != c.want {
			t.Errorf("ScopedLockKey(%s, %q) = %q, want %q", c.scope, c.resource, got, c.want)
		}
	}
}

func TestRetryTimingFromConfig(t *testing.T) {
	m := NewManager(nil, config.Load())
	if m.retryInterval != 50*time.Millisecond {
		t.Fatalf("retry interval = %v, want fixed 50ms", m.retryInterval)
	}
	if m.acquireTimeout != 5*time.Second {
		t.Fatalf("acquire timeout = %v, want 5s", m.acquireTimeout)
	}
}

func TestRetryTimingDefaultsWhenUnset(t *testing.T) {
	m := NewManager(nil, config.Config{})
	if m.retryInterval != DefaultRetryInterval {
		t.Fatalf("retry interval = %v, want %v", m.retryInterval, DefaultRetryInterval)
	}
	if m.acquireTimeout != DefaultAcquireTimeout {
		t.Fatalf("acquire timeout = %v, want %v", m.acquireTimeout, DefaultAcquireTimeout)
	}
}

func TestReleaseNilLockIsNotHeld(t *testing.T) {
	var l *Lock
	if err := l.Release(nil); err != ErrLockNotHeld {
		t.Fatalf("releasing a nil lock = %v, want ErrLockNotHeld", err)
	}
	if err := l.Renew(nil, time.Second); err != ErrLockNotHeld {
		t.Fatalf("renewing a nil lock = %v, want ErrLockNotHeld", err)
	}
}
