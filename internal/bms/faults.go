package bms

import "strings"

// ErrorFlags is a bit array of sensed faults, one bit per ErrorFlag.
type ErrorFlags uint32

// ErrorFlag is the bit position of a single fault kind.
type ErrorFlag uint8

const (
	FaultCellUndervoltage ErrorFlag = 0
	FaultCellOvervoltage  ErrorFlag = 1
	FaultShortCircuit     ErrorFlag = 2 // discharge direction
	FaultDisOvercurrent   ErrorFlag = 3
	FaultChgOvercurrent   ErrorFlag = 4
	FaultOpenWire         ErrorFlag = 5
	FaultDisUndertemp     ErrorFlag = 6
	FaultDisOvertemp      ErrorFlag = 7
	FaultChgUndertemp     ErrorFlag = 8
	FaultChgOvertemp      ErrorFlag = 9
	FaultIntOvertemp      ErrorFlag = 10 // BMS IC
	FaultCellFailure      ErrorFlag = 11 // voltage difference too high
	FaultDisOff           ErrorFlag = 12 // discharge FET off
	FaultChgOff           ErrorFlag = 13 // charge FET off
	FaultFETOvertemp      ErrorFlag = 14 // reported only, not classified
)

var errorFlagNames = []string{
	FaultCellUndervoltage: "cell_undervoltage",
	FaultCellOvervoltage:  "cell_overvoltage",
	FaultShortCircuit:     "short_circuit",
	FaultDisOvercurrent:   "dis_overcurrent",
	FaultChgOvercurrent:   "chg_overcurrent",
	FaultOpenWire:         "open_wire",
	FaultDisUndertemp:     "dis_undertemp",
	FaultDisOvertemp:      "dis_overtemp",
	FaultChgUndertemp:     "chg_undertemp",
	FaultChgOvertemp:      "chg_overtemp",
	FaultIntOvertemp:      "int_overtemp",
	FaultCellFailure:      "cell_failure",
	FaultDisOff:           "dis_off",
	FaultChgOff:           "chg_off",
	FaultFETOvertemp:      "fet_overtemp",
}

func (f ErrorFlag) String() string {
	if int(f) < len(errorFlagNames) {
		return errorFlagNames[f]
	}
	return "unknown"
}

// Mask returns the single-bit mask for f.
func (f ErrorFlag) Mask() ErrorFlags {
	return 1 << f
}

// Flags builds a bit array from individual flags.
func Flags(flags ...ErrorFlag) ErrorFlags {
	var out ErrorFlags
	for _, f := range flags {
		out |= f.Mask()
	}
	return out
}

// Has reports whether f is set.
func (e ErrorFlags) Has(f ErrorFlag) bool {
	return e&f.Mask() != 0
}

// Names lists the set flags in bit order.
func (e ErrorFlags) Names() []string {
	var names []string
	for i := range errorFlagNames {
		if e.Has(ErrorFlag(i)) {
			names = append(names, errorFlagNames[i])
		}
	}
	return names
}

func (e ErrorFlags) String() string {
	if e == 0 {
		return "none"
	}
	return strings.Join(e.Names(), ",")
}

// Faults that block the charge path.
var chargeFaults = Flags(
	FaultCellOvervoltage,
	FaultChgOvercurrent,
	FaultOpenWire,
	FaultChgUndertemp,
	FaultChgOvertemp,
	FaultIntOvertemp,
	FaultCellFailure,
	FaultChgOff,
)

// Faults that block the discharge path.
var dischargeFaults = Flags(
	FaultCellUndervoltage,
	FaultShortCircuit,
	FaultDisOvercurrent,
	FaultOpenWire,
	FaultDisUndertemp,
	FaultDisOvertemp,
	FaultIntOvertemp,
	FaultCellFailure,
	FaultDisOff,
)

// ChargeBlocked reports whether any charging fault is set.
func ChargeBlocked(flags ErrorFlags) bool {
	return flags&chargeFaults != 0
}

// DischargeBlocked reports whether any discharging fault is set.
func DischargeBlocked(flags ErrorFlags) bool {
	return flags&dischargeFaults != 0
}

// ChargeAllowed reports whether the charge path may be enabled.
// The charge FET off flag is ignored so that it cannot latch the path off.
func ChargeAllowed(st *Status) bool {
	return !ChargeBlocked(st.ErrorFlags&^FaultChgOff.Mask()) && !st.Full && st.ChgEnable
}

// DischargeAllowed reports whether the discharge path may be enabled.
// The discharge FET off flag is ignored so that it cannot latch the path off.
func DischargeAllowed(st *Status) bool {
	return !DischargeBlocked(st.ErrorFlags&^FaultDisOff.Mask()) && !st.Empty && st.DisEnable
}
