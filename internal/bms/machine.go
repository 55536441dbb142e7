package bms

import (
	"log"
	"time"
)

// FaultHandler refreshes st.ErrorFlags from the latest measurements.
// It runs at the start of every cycle and must return quickly.
type FaultHandler interface {
	RefreshFaults(conf *Config, st *Status)
}

// Actuator drives the charge and discharge FETs. Calls are idempotent.
type Actuator interface {
	SetCharge(enable bool) error
	SetDischarge(enable bool) error
}

// Machine is the protection state machine. The current state lives in
// Status.State so that a Machine holds no pack data of its own.
// Not safe for concurrent use.
type Machine struct {
	faults  FaultHandler
	inhibit func() bool
	act     Actuator
	counts  TransitionCounts
}

// NewMachine creates a state machine. inhibit may be nil, in which case the
// first transition out of OFF is never delayed.
func NewMachine(faults FaultHandler, inhibit func() bool, act Actuator) *Machine {
	if inhibit == nil {
		inhibit = func() bool { return false }
	}
	return &Machine{
		faults:  faults,
		inhibit: inhibit,
		act:     act,
	}
}

// RunCycle refreshes the fault flags and evaluates one state transition.
// It returns the transition made, or nil if the state did not change.
func (m *Machine) RunCycle(conf *Config, st *Status, now time.Time) *Transition {
	m.faults.RefreshFaults(conf, st)

	from := st.State
	if from == "" {
		from = StateOff
	}

	to := from
	switch from {
	case StateOff:
		if m.inhibit() {
			return nil
		}
		if DischargeAllowed(st) {
			m.setDischarge(st, true)
			to = StateDis
		} else if ChargeAllowed(st) {
			m.setCharge(st, true)
			to = StateChg
		}

	case StateChg:
		if !ChargeAllowed(st) {
			m.setCharge(st, false)
			m.setDischarge(st, false) // may be on from diode emulation
			to = StateOff
		} else if DischargeAllowed(st) {
			m.setDischarge(st, true)
			to = StateNormal
		} else {
			// ideal diode for the discharge FET
			if st.PackCurrent > conf.DiodeOnCurrent {
				m.setDischarge(st, true)
			} else if st.PackCurrent < conf.DiodeOffCurrent {
				m.setDischarge(st, false)
			}
		}

	case StateDis:
		if !DischargeAllowed(st) {
			m.setDischarge(st, false)
			m.setCharge(st, false) // may be on from diode emulation
			to = StateOff
		} else if ChargeAllowed(st) {
			m.setCharge(st, true)
			to = StateNormal
		} else {
			// ideal diode for the charge FET
			if st.PackCurrent < -conf.DiodeOnCurrent {
				m.setCharge(st, true)
			} else if st.PackCurrent > -conf.DiodeOffCurrent {
				m.setCharge(st, false)
			}
		}

	case StateNormal:
		if !DischargeAllowed(st) {
			m.setDischarge(st, false)
			to = StateChg
		} else if !ChargeAllowed(st) {
			m.setCharge(st, false)
			to = StateDis
		}

	default:
		log.Printf("bms: unknown state %q, forcing OFF", from)
		m.setCharge(st, false)
		m.setDischarge(st, false)
		to = StateOff
	}

	st.State = to
	if to == from {
		return nil
	}

	m.count(to)
	log.Printf("bms: going to state %s (errors: %s)", to, st.ErrorFlags)
	return &Transition{
		Timestamp:  now,
		From:       from,
		To:         to,
		ErrorFlags: st.ErrorFlags,
	}
}

// Counts returns the number of transitions into each state since creation.
func (m *Machine) Counts() TransitionCounts {
	return m.counts
}

func (m *Machine) count(to State) {
	switch to {
	case StateOff:
		m.counts.Off++
	case StateChg:
		m.counts.Chg++
	case StateDis:
		m.counts.Dis++
	case StateNormal:
		m.counts.Normal++
	}
}

func (m *Machine) setCharge(st *Status, enable bool) {
	st.Commanded.Charge = enable
	if err := m.act.SetCharge(enable); err != nil {
		log.Printf("bms: set charge switch %v: %v", enable, err)
	}
}

func (m *Machine) setDischarge(st *Status, enable bool) {
	st.Commanded.Discharge = enable
	if err := m.act.SetDischarge(enable); err != nil {
		log.Printf("bms: set discharge switch %v: %v", enable, err)
	}
}
