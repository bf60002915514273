/*

This file contains the Recorder abstraction used by the keeper, the controller
event sink and the API. PostgresRecorder delegates to the package-level store
functions; MemoryRecorder keeps everything in process for runs without a database.

*/

package state

import (
	"errors"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/types"
	"github.com/elys-network/pegguard/internal/utils"
)

var ErrCycleNotFound = errors.New("cycle not found")

// Recorder persists keeper cycles and controller events.
type Recorder interface {
	NextCycleNumber() (int, error)
	ActiveBandParametersID() (*int64, error)
	SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error)
	SaveEvent(event types.Event) error
	RecentCycles(limit int) ([]types.CycleSnapshot, error)
	CycleByID(snapshotID int64) (*types.CycleSnapshot, error)
	LatestCycle() (*types.CycleSnapshot, error)
	RecentEvents(limit int, eventTypes ...types.EventType) ([]types.Event, error)
	PriceHistory(limit int) ([]types.PriceData, error)
	Performance() (*PegPerformance, error)
	Healthy() error
}

// PostgresRecorder stores everything in the database opened by InitDB.
type PostgresRecorder struct {
	ConfigName string // band_parameters config the snapshots are linked to
}

func (r PostgresRecorder) NextCycleNumber() (int, error) { return NextCycleNumber() }

func (r PostgresRecorder) ActiveBandParametersID() (*int64, error) {
	return GetActiveBandParametersID(r.ConfigName)
}

func (r PostgresRecorder) SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	return SaveCycleSnapshot(snapshot)
}

func (r PostgresRecorder) SaveEvent(event types.Event) error { return SaveEvent(event) }

func (r PostgresRecorder) RecentCycles(limit int) ([]types.CycleSnapshot, error) {
	return GetRecentCycles(limit)
}

func (r PostgresRecorder) CycleByID(snapshotID int64) (*types.CycleSnapshot, error) {
	return GetCycleByID(snapshotID)
}

func (r PostgresRecorder) LatestCycle() (*types.CycleSnapshot, error) { return GetLatestCycle() }

func (r PostgresRecorder) RecentEvents(limit int, eventTypes ...types.EventType) ([]types.Event, error) {
	return GetRecentEvents(limit, eventTypes)
}

func (r PostgresRecorder) PriceHistory(limit int) ([]types.PriceData, error) {
	return GetPriceHistory(limit)
}

func (r PostgresRecorder) Performance() (*PegPerformance, error) { return GetPegPerformance() }

func (r PostgresRecorder) Healthy() error { return TestDBConnection() }

// SaveBand activates band as the next version of the recorder's band config.
func (r PostgresRecorder) SaveBand(band types.Band) error {
	_, err := SaveActiveBand(band, r.ConfigName)
	return err
}

// maxRetained bounds how many cycles and events a MemoryRecorder keeps.
const maxRetained = 10_000

// MemoryRecorder is an in-process Recorder. The zero value is ready to use.
type MemoryRecorder struct {
	mu     sync.RWMutex
	cycle  int
	nextID int64
	cycles []types.CycleSnapshot
	events []types.Event
	seen   map[string]bool
}

// NewMemoryRecorder returns an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) NextCycleNumber() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycle++
	return m.cycle, nil
}

func (m *MemoryRecorder) ActiveBandParametersID() (*int64, error) { return nil, nil }

func (m *MemoryRecorder) SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	snapshot.SnapshotID = m.nextID
	m.cycles = append(m.cycles, snapshot)
	if len(m.cycles) > maxRetained {
		m.cycles = m.cycles[len(m.cycles)-maxRetained:]
	}
	return snapshot.SnapshotID, nil
}

func (m *MemoryRecorder) SaveEvent(event types.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[event.ID] {
		return nil
	}
	m.seen[event.ID] = true
	m.events = append(m.events, event)
	if len(m.events) > maxRetained {
		for _, dropped := range m.events[:len(m.events)-maxRetained] {
			delete(m.seen, dropped.ID)
		}
		m.events = m.events[len(m.events)-maxRetained:]
	}
	return nil
}

// RecentCycles returns up to limit cycles, newest first.
func (m *MemoryRecorder) RecentCycles(limit int) ([]types.CycleSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit = clampLimit(limit)
	out := make([]types.CycleSnapshot, 0, limit)
	for i := len(m.cycles) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.cycles[i])
	}
	return out, nil
}

func (m *MemoryRecorder) CycleByID(snapshotID int64) (*types.CycleSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// IDs are assigned in order, so the slice is sorted by SnapshotID.
	i := sort.Search(len(m.cycles), func(i int) bool { return m.cycles[i].SnapshotID >= snapshotID })
	if i == len(m.cycles) || m.cycles[i].SnapshotID != snapshotID {
		return nil, ErrCycleNotFound
	}
	cycle := m.cycles[i]
	return &cycle, nil
}

func (m *MemoryRecorder) LatestCycle() (*types.CycleSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.cycles) == 0 {
		return nil, ErrCycleNotFound
	}
	cycle := m.cycles[len(m.cycles)-1]
	return &cycle, nil
}

// RecentEvents returns up to limit events, newest first.
func (m *MemoryRecorder) RecentEvents(limit int, eventTypes ...types.EventType) ([]types.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wanted := make(map[types.EventType]bool, len(eventTypes))
	for _, t := range eventTypes {
		wanted[t] = true
	}
	limit = clampLimit(limit)
	out := make([]types.Event, 0, limit)
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if len(wanted) > 0 && !wanted[m.events[i].Type] {
			continue
		}
		out = append(out, m.events[i])
	}
	return out, nil
}

// PriceHistory returns the initial spot of the most recent cycles, oldest first.
func (m *MemoryRecorder) PriceHistory(limit int) ([]types.PriceData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit = clampHistoryLimit(limit)
	start := 0
	if len(m.cycles) > limit {
		start = len(m.cycles) - limit
	}
	history := make([]types.PriceData, 0, len(m.cycles)-start)
	for _, cycle := range m.cycles[start:] {
		spot := cycle.InitialPrices.Spot
		if spot.IsNil() || !spot.IsPositive() {
			continue
		}
		price, err := utils.PriceToFloat64(spot)
		if err != nil {
			continue
		}
		history = append(history, types.PriceData{Timestamp: cycle.Timestamp, Price: price})
	}
	return history, nil
}

// Performance aggregates the retained cycles.
func (m *MemoryRecorder) Performance() (*PegPerformance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	perf := &PegPerformance{ActionCounts: make(map[types.ActionType]int)}
	total := sdkmath.ZeroInt()
	for _, cycle := range m.cycles {
		perf.TotalCycles++
		perf.ActionCounts[cycle.Proposal.Action]++
		if cycle.Proposal.Action != types.ActionNone {
			perf.ActionCycles++
		}
		if cycle.ErrorMessage != "" {
			perf.FailedCycles++
		}
		if !cycle.PegDistanceChange.IsNil() {
			total = total.Add(cycle.PegDistanceChange)
		}
	}
	perf.TotalPegDistanceChange = total.String()
	if n := len(m.cycles); n > 0 {
		last := m.cycles[n-1].Timestamp
		perf.LastUpdated = &last
	}
	return perf, nil
}

func (m *MemoryRecorder) Healthy() error { return nil }
