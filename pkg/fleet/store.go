// Package fleet holds the monitor's view of the robot fleet: the latest
// telemetry record per robot and the summaries derived from it.
package fleet

import (
	"sync"
	"time"
)

// Counts are the derived fleet gauges. They are always computed from the same
// view of the fleet as any listing returned alongside them.
type Counts struct {
	Total       int
	Operational int
}

// LowBattery is every robot that is not operational, whatever its status says.
func (c Counts) LowBattery() int {
	return c.Total - c.Operational
}

type Snapshot struct {
	Robots  map[string]Record
	Counts  Counts
	TakenAt time.Time
}

type HealthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Store owns the fleet state. Every method manages its own critical section;
// callers only ever receive copies.
type Store struct {
	clock func() time.Time

	robotsMu sync.RWMutex
	robots   map[string]*Record
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

func NewStoreWithClock(clock func() time.Time) *Store {
	return &Store{
		clock:  clock,
		robots: map[string]*Record{},
	}
}

// Ingest stamps the record with the server clock and replaces whatever was
// stored for its robot. It returns the stored copy.
func (s *Store) Ingest(rec Record) Record {
	stored := rec.Clone()
	if stored.AgentID == "" {
		stored.AgentID = UnknownAgentID
	}

	s.robotsMu.Lock()
	defer s.robotsMu.Unlock()
	stored.LastSeen = s.clock().UTC()
	s.robots[stored.AgentID] = &stored
	return stored.Clone()
}

// Snapshot copies the whole fleet and counts it in the same pass, under a
// single read lock.
func (s *Store) Snapshot() Snapshot {
	s.robotsMu.RLock()
	defer s.robotsMu.RUnlock()

	snap := Snapshot{
		Robots:  make(map[string]Record, len(s.robots)),
		TakenAt: s.clock().UTC(),
	}
	for id, rec := range s.robots {
		snap.Robots[id] = rec.Clone()
		if rec.Operational() {
			snap.Counts.Operational++
		}
	}
	snap.Counts.Total = len(snap.Robots)
	return snap
}

func (s *Store) Counts() Counts {
	s.robotsMu.RLock()
	defer s.robotsMu.RUnlock()

	c := Counts{Total: len(s.robots)}
	for _, rec := range s.robots {
		if rec.Operational() {
			c.Operational++
		}
	}
	return c
}

// Health does not depend on the fleet state and never blocks on it.
func (s *Store) Health() HealthStatus {
	return HealthStatus{
		Status:  "healthy",
		Service: "fleet-monitor",
	}
}
