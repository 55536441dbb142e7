// Package frontend is the boundary to the analog front end (AFE) process.
// The AFE samples cells, detects and debounces faults, and publishes the
// result; this package turns those samples into bms.Status updates.
package frontend

import (
	"log"
	"sync"
	"time"

	"github.com/sweeney/bms-controller/internal/bms"
)

// Measurements is one settled sample from the AFE.
type Measurements struct {
	Timestamp    time.Time
	CellVoltages []float64 // V
	PackVoltage  float64   // V
	PackCurrent  float64   // A, positive when charging
	Temperatures []float64 // °C
	ErrorFlags   bms.ErrorFlags
	Full         bool
	Empty        bool
}

// Source provides the most recent measurements.
type Source interface {
	// Latest returns the newest sample, or false if none arrived yet.
	Latest() (Measurements, bool)
}

// Holder stores the newest sample. Writers (MQTT callbacks) and the control
// loop may use it concurrently.
type Holder struct {
	mu  sync.Mutex
	m   Measurements
	set bool
}

// Store replaces the held sample.
func (h *Holder) Store(m Measurements) {
	h.mu.Lock()
	h.m = m
	h.set = true
	h.mu.Unlock()
}

// Latest returns a copy of the held sample.
func (h *Holder) Latest() (Measurements, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.set {
		return Measurements{}, false
	}
	m := h.m
	m.CellVoltages = append([]float64(nil), h.m.CellVoltages...)
	m.Temperatures = append([]float64(nil), h.m.Temperatures...)
	return m, true
}

// Collector implements bms.FaultHandler on top of a Source.
type Collector struct {
	src        Source
	now        func() time.Time
	staleAfter time.Duration
	stale      bool
	received   bool
}

// NewCollector creates a Collector. While the newest sample is older than
// staleAfter both current paths are reported unavailable, which takes the
// machine to OFF; staleAfter <= 0 disables the check.
func NewCollector(src Source, now func() time.Time, staleAfter time.Duration) *Collector {
	return &Collector{src: src, now: now, staleAfter: staleAfter}
}

// RefreshFaults copies the newest sample into st and keeps the idle timer
// used by balancing up to date. A stale sample marks the pack both full and
// empty so that neither path stays enabled on data the AFE no longer confirms.
func (c *Collector) RefreshFaults(conf *bms.Config, st *bms.Status) {
	now := c.now()
	if st.NoIdleTimestamp.IsZero() {
		st.NoIdleTimestamp = now
	}

	m, ok := c.src.Latest()
	if !ok {
		return
	}
	c.received = true

	if c.staleAfter > 0 && now.Sub(m.Timestamp) > c.staleAfter {
		if !c.stale {
			log.Printf("frontend: measurements stale (last at %s), disabling both paths",
				m.Timestamp.UTC().Format(time.RFC3339))
			c.stale = true
		}
	} else if c.stale {
		log.Printf("frontend: measurements fresh again")
		c.stale = false
	}

	Apply(st, m)
	bms.TrackIdle(conf, st, now)
	if c.stale {
		st.Full = true
		st.Empty = true
	}
}

// Received reports whether at least one sample has been applied.
func (c *Collector) Received() bool {
	return c.received
}

// Stale reports whether the last applied sample was older than staleAfter.
func (c *Collector) Stale() bool {
	return c.stale
}

// Apply copies m into st, deriving the cell and temperature extremes.
func Apply(st *bms.Status, m Measurements) {
	st.ErrorFlags = m.ErrorFlags
	st.Full = m.Full
	st.Empty = m.Empty
	st.PackCurrent = m.PackCurrent
	st.PackVoltage = m.PackVoltage

	if n := len(m.CellVoltages); n > 0 {
		st.ConnectedCells = n
		lo, hi, sum := m.CellVoltages[0], m.CellVoltages[0], 0.0
		for _, v := range m.CellVoltages {
			lo = min(lo, v)
			hi = max(hi, v)
			sum += v
		}
		st.CellVoltageMin = lo
		st.CellVoltageMax = hi
		st.CellVoltageAvg = sum / float64(n)
	}

	if len(m.Temperatures) > 0 {
		lo, hi := m.Temperatures[0], m.Temperatures[0]
		for _, t := range m.Temperatures {
			lo = min(lo, t)
			hi = max(hi, t)
		}
		st.TempMin = lo
		st.TempMax = hi
	}
}

// SettleGuard inhibits the first OFF transition until the AFE has had time
// to settle after power-on and at least one sample was received.
type SettleGuard struct {
	start     time.Time
	delay     time.Duration
	now       func() time.Time
	collector *Collector
}

// NewSettleGuard creates a guard that releases delay after start.
// collector may be nil when no sample check is wanted.
func NewSettleGuard(start time.Time, delay time.Duration, now func() time.Time, collector *Collector) *SettleGuard {
	return &SettleGuard{start: start, delay: delay, now: now, collector: collector}
}

// Inhibited reports whether switching out of OFF must wait.
func (g *SettleGuard) Inhibited() bool {
	if g.now().Sub(g.start) < g.delay {
		return true
	}
	return g.collector != nil && !g.collector.Received()
}
