// Package bms contains the pure protection logic of the battery management unit.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters, and hardware is reached
// only through the FaultHandler and Switches interfaces.
package bms

import (
	"errors"
	"time"
)

// State represents the protection state of the pack.
type State string

const (
	StateOff    State = "OFF"    // charging and discharging disabled
	StateChg    State = "CHG"    // charging allowed, discharge path diode-emulated
	StateDis    State = "DIS"    // discharging allowed, charge path diode-emulated
	StateNormal State = "NORMAL" // both paths enabled
)

// ErrInvalidConfig is wrapped by every error returned from Config.Validate.
var ErrInvalidConfig = errors.New("invalid bms config")

// Board holds the limits of the PCB the BMS runs on.
type Board struct {
	MaxCurrent      float64 // A, continuous rating of the FETs and traces
	ShuntResistance float64 // mOhm
}

// Config holds protection thresholds. It is built once by InitConfig and only
// changes through explicit calls; nothing in this package mutates it.
type Config struct {
	ShuntResistance float64 // mOhm
	ThermistorBeta  uint16

	// OCV holds open circuit voltages from 100% down to 0% SOC in equal steps.
	// Nil means OCV based SOC estimation is unavailable.
	OCV []float64

	NominalCapacity float64 // Ah

	// Current limits (A)
	DisSCLimit float64
	DisSCDelay time.Duration
	DisOCLimit float64
	DisOCDelay time.Duration
	ChgOCLimit float64
	ChgOCDelay time.Duration

	// Cell voltage limits (V)
	CellChgVoltage float64
	CellDisVoltage float64
	CellOVLimit    float64
	CellOVReset    float64
	CellOVDelay    time.Duration
	CellUVLimit    float64
	CellUVReset    float64
	CellUVDelay    time.Duration

	// Temperature limits (°C)
	DisOTLimit    float64
	DisUTLimit    float64
	ChgOTLimit    float64
	ChgUTLimit    float64
	TempLimitHyst float64

	// Balancing
	AutoBalancing      bool
	BalCellVoltageDiff float64 // V
	BalCellVoltageMin  float64 // V
	BalIdleCurrent     float64 // A
	BalIdleDelay       time.Duration

	// Diode emulation band (A). In CHG the discharge FET turns on above
	// DiodeOnCurrent and off below DiodeOffCurrent; DIS uses the negated values.
	DiodeOnCurrent  float64
	DiodeOffCurrent float64
}

// Switches is the commanded state of the two current paths.
type Switches struct {
	Charge    bool
	Discharge bool
}

// Status is the live operational record of the pack. It is owned by the
// control loop and must not be shared without copying.
type Status struct {
	State State

	// User level enable switches
	ChgEnable bool
	DisEnable bool

	// Commanded is written only by the state machine.
	Commanded Switches

	// ErrorFlags is written only by the fault handler.
	ErrorFlags ErrorFlags

	ConnectedCells int

	CellVoltageMin float64
	CellVoltageMax float64
	CellVoltageAvg float64
	PackVoltage    float64

	// PackCurrent is positive when charging (A).
	PackCurrent float64

	TempMin float64
	TempMax float64

	Full  bool
	Empty bool

	// NoIdleTimestamp is the last time |PackCurrent| exceeded BalIdleCurrent.
	NoIdleTimestamp time.Time
}

// Transition describes a state change made by the state machine.
type Transition struct {
	Timestamp  time.Time
	From       State
	To         State
	ErrorFlags ErrorFlags
}

// TransitionCounts tracks the number of transitions into each state since startup.
type TransitionCounts struct {
	Off    int
	Chg    int
	Dis    int
	Normal int
}
