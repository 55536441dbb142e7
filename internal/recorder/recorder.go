// Package recorder keeps a persistent log of protection state transitions.
package recorder

import (
	"time"

	"github.com/sweeney/bms-controller/internal/bms"
)

// Event is one recorded transition with the pack conditions at the time.
type Event struct {
	Timestamp   time.Time
	From        bms.State
	To          bms.State
	ErrorFlags  bms.ErrorFlags
	PackVoltage float64
	PackCurrent float64
	CellMin     float64
	CellMax     float64
	TempMax     float64
}

// NewEvent combines a transition with the status it produced.
func NewEvent(tr bms.Transition, st *bms.Status) Event {
	return Event{
		Timestamp:   tr.Timestamp,
		From:        tr.From,
		To:          tr.To,
		ErrorFlags:  tr.ErrorFlags,
		PackVoltage: st.PackVoltage,
		PackCurrent: st.PackCurrent,
		CellMin:     st.CellVoltageMin,
		CellMax:     st.CellVoltageMax,
		TempMax:     st.TempMax,
	}
}

// Recorder persists transitions for later analysis.
type Recorder interface {
	RecordTransition(evt Event) error
	// Recent returns up to limit events, newest first.
	Recent(limit int) ([]Event, error)
	Close() error
}
