package bms

import (
	"math"
	"time"
)

// BalancingAllowed reports whether cell balancing may run at time now.
// It requires the pack to have been idle for at least BalIdleDelay, the
// highest cell to be above BalCellVoltageMin and the cell spread to exceed
// BalCellVoltageDiff.
func BalancingAllowed(conf *Config, st *Status, now time.Time) bool {
	idle := now.Sub(st.NoIdleTimestamp)
	diff := st.CellVoltageMax - st.CellVoltageMin

	return idle >= conf.BalIdleDelay &&
		st.CellVoltageMax > conf.BalCellVoltageMin &&
		diff > conf.BalCellVoltageDiff
}

// TrackIdle moves NoIdleTimestamp to now whenever the pack current magnitude
// exceeds BalIdleCurrent. Measurement code calls it after every current sample.
func TrackIdle(conf *Config, st *Status, now time.Time) {
	if math.Abs(st.PackCurrent) > conf.BalIdleCurrent {
		st.NoIdleTimestamp = now
	}
}
