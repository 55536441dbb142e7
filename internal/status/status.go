// Package status provides a thread-safe view of the controller for readers
// outside the control loop (HTTP handlers, heartbeat).
package status

import (
	"sync"
	"time"

	"github.com/sweeney/bms-controller/internal/bms"
)

// Config contains daemon configuration for display.
type Config struct {
	Name            string
	Chemistry       string
	NominalCapacity float64 // Ah
	CycleMs         int64
	Heartbeat       string // cron spec
	Broker          string
	HTTPPort        string

	Limits Limits
}

// Limits are the protection thresholds in effect.
type Limits struct {
	CellOVLimit float64
	CellUVLimit float64
	DisOCLimit  float64
	ChgOCLimit  float64
	DisSCLimit  float64
	ChgOTLimit  float64
	DisOTLimit  float64
}

// LimitsFrom extracts the display limits from a protection config.
func LimitsFrom(conf *bms.Config) Limits {
	return Limits{
		CellOVLimit: conf.CellOVLimit,
		CellUVLimit: conf.CellUVLimit,
		DisOCLimit:  conf.DisOCLimit,
		ChgOCLimit:  conf.ChgOCLimit,
		DisSCLimit:  conf.DisSCLimit,
		ChgOTLimit:  conf.ChgOTLimit,
		DisOTLimit:  conf.DisOTLimit,
	}
}

// Allowed holds the permission predicates evaluated on the last cycle.
type Allowed struct {
	Charge    bool
	Discharge bool
	Balancing bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	BMS           bms.Status
	Allowed       Allowed
	Counts        bms.TransitionCounts
	Ready         bool // start-up settle delay elapsed and first sample received
	Stale         bool
	SOC           float64
	SOCKnown      bool
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BMS:       bms.Status{State: bms.StateOff},
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update copies the controller status after a cycle.
// Called from runLoop on every tick.
func (t *Tracker) Update(st bms.Status, allowed Allowed, counts bms.TransitionCounts, ready, stale bool) {
	t.mu.Lock()
	t.snap.BMS = st
	t.snap.Allowed = allowed
	t.snap.Counts = counts
	t.snap.Ready = ready
	t.snap.Stale = stale
	t.mu.Unlock()
}

// SetSOC records the state-of-charge estimate in percent.
func (t *Tracker) SetSOC(soc float64) {
	t.mu.Lock()
	t.snap.SOC = soc
	t.snap.SOCKnown = true
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
