// Package gameloop implements the per-table scheduling model of
// cooperative turns, plus the table registry and its memory
// reclamation cleanup loop.
package gameloop

import (
	"log"
	"sync"
	"time"

	"pokercore/internal/chipintegrity"
	"pokercore/internal/metrics"
	"pokercore/internal/table"
)

// Manager owns every live table on this server instance. It is the
// process-wide game manager singleton: init is explicit (NewManager),
// teardown explicit (Shutdown).
type Manager struct {
	mu            sync.RWMutex
	tables        map[string]*table.Table
	integrity     *chipintegrity.Verifier
	emptyEvictAge time.Duration
	maxHandLog    int

	stopCleanup chan struct{}
}

// NewManager creates a table registry sealing chip snapshots with
// integrity.
func NewManager(integrity *chipintegrity.Verifier, emptyEvictAge time.Duration) *Manager {
	return &Manager{
		tables:        make(map[string]*table.Table),
		integrity:     integrity,
		emptyEvictAge: emptyEvictAge,
		maxHandLog:    10,
		stopCleanup:   make(chan struct{}),
	}
}

// GetOrCreateTable returns the table for id, creating it with cfg on
// first use.
func (m *Manager) GetOrCreateTable(id string, cfg table.Config) *table.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[id]; ok {
		return t
	}
	t := table.New(id, cfg, m.integrity)
	m.tables[id] = t
	log.Printf("[GAME_MANAGER] created table %s (%d-max, blinds %d/%d)", id, cfg.MaxSeats, cfg.SmallBlind, cfg.BigBlind)
	return t
}

// GetTable returns a table by ID.
func (m *Manager) GetTable(id string) (*table.Table, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[id]
	return t, ok
}

// RemoveTable evicts a table immediately (used by tests and admin tooling).
func (m *Manager) RemoveTable(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, id)
}

// TableIDs returns a snapshot slice of every live table ID.
func (m *Manager) TableIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.tables))
	for id := range m.tables {
		ids = append(ids, id)
	}
	return ids
}

// RunCleanupLoop evicts tables empty for >= emptyEvictAge, trims each
// table's hand-action log to the last maxHandLog entries, every
// interval, until Shutdown.
func (m *Manager) RunCleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCleanup:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, t := range m.tables {
		t.Mu.Lock()
		empty := true
		for _, p := range t.Seats {
			if p != nil {
				empty = false
				break
			}
		}
		if empty && now.Sub(t.LastActiveAt) >= m.emptyEvictAge {
			t.Mu.Unlock()
			delete(m.tables, id)
			log.Printf("[GAME_MANAGER] evicted empty table %s (idle %v)", id, now.Sub(t.LastActiveAt))
			continue
		}
		if len(t.ActionLog) > m.maxHandLog {
			t.ActionLog = t.ActionLog[len(t.ActionLog)-m.maxHandLog:]
		}
		t.Mu.Unlock()
	}
	metrics.ActiveTables.Set(float64(len(m.tables)))
}

// Shutdown stops the cleanup loop.
func (m *Manager) Shutdown() {
	close(m.stopCleanup)
}
