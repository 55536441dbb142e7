package bms

import (
	"fmt"
	"strings"
	"time"
)

// Chemistry selects one of the built-in cell profiles.
type Chemistry int

const (
	ChemistryCustom Chemistry = iota // caller sets every threshold
	ChemistryLFP                     // LiFePO4, 3.3 V nominal
	ChemistryNMC                     // NMC/graphite, 3.7 V nominal
	ChemistryNMCHV                   // NMC/graphite high voltage, 4.35 V max
	ChemistryLTO                     // lithium titanate, 2.4 V nominal
)

var chemistryNames = map[Chemistry]string{
	ChemistryCustom: "custom",
	ChemistryLFP:    "lfp",
	ChemistryNMC:    "nmc",
	ChemistryNMCHV:  "nmc_hv",
	ChemistryLTO:    "lto",
}

func (c Chemistry) String() string {
	if name, ok := chemistryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("chemistry(%d)", int(c))
}

// ParseChemistry converts a config file name like "lfp" or "nmc_hv" to a Chemistry.
func ParseChemistry(s string) (Chemistry, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	for c, n := range chemistryNames {
		if n == name {
			return c, nil
		}
	}
	return ChemistryCustom, fmt.Errorf("unknown chemistry %q", s)
}

// Profile is the set of cell thresholds a chemistry preset fixes.
type Profile struct {
	CellOVLimit       float64
	CellChgVoltage    float64
	CellOVReset       float64
	BalCellVoltageMin float64
	CellUVReset       float64
	CellDisVoltage    float64
	CellUVLimit       float64
	OCV               []float64
}

// ocvLFP is the LiFePO4 open circuit voltage for 100, 95, ..., 5, 0 % SOC.
var ocvLFP = []float64{
	3.392, 3.314, 3.309, 3.308, 3.304, 3.296, 3.283, 3.275, 3.271, 3.268, 3.265,
	3.264, 3.262, 3.252, 3.240, 3.226, 3.213, 3.190, 3.177, 3.132, 2.833,
}

// profiles has no entry for ChemistryCustom.
var profiles = map[Chemistry]Profile{
	ChemistryLFP: {
		CellOVLimit:       3.80,
		CellChgVoltage:    3.55,
		CellOVReset:       3.40,
		BalCellVoltageMin: 3.30,
		CellUVReset:       3.10,
		CellDisVoltage:    2.80,
		CellUVLimit:       2.50, // most cells survive 2.0 V, keep margin for self-discharge
		OCV:               ocvLFP,
	},
	ChemistryNMC: {
		CellOVLimit:       4.25,
		CellChgVoltage:    4.20,
		CellOVReset:       4.05,
		BalCellVoltageMin: 3.80,
		CellUVReset:       3.50,
		CellDisVoltage:    3.20,
		CellUVLimit:       3.00,
	},
	ChemistryNMCHV: {
		CellOVLimit:       4.35,
		CellChgVoltage:    4.30,
		CellOVReset:       4.15,
		BalCellVoltageMin: 3.80,
		CellUVReset:       3.50,
		CellDisVoltage:    3.20,
		CellUVLimit:       3.00,
	},
	ChemistryLTO: {
		CellOVLimit:       2.85,
		CellChgVoltage:    2.80,
		CellOVReset:       2.70,
		BalCellVoltageMin: 2.50,
		CellUVReset:       2.10,
		CellDisVoltage:    2.00,
		CellUVLimit:       1.90,
	},
}

// LookupProfile returns the preset for chem. Custom and unknown values report false.
func LookupProfile(chem Chemistry) (Profile, bool) {
	p, ok := profiles[chem]
	return p, ok
}

// InitStatus resets st so that the device is usable by default.
func InitStatus(st *Status) {
	*st = Status{
		State:     StateOff,
		ChgEnable: true,
		DisEnable: true,
	}
}

// InitConfig fills conf with typical defaults for the given chemistry.
//
// ChemistryCustom, and any value without a profile, leaves every cell
// threshold at zero. Callers using it must set the thresholds themselves
// before the config passes Validate.
func InitConfig(conf *Config, chem Chemistry, nominalCapacity float64, board Board) {
	conf.AutoBalancing = true
	conf.BalIdleDelay = 30 * time.Minute
	conf.BalIdleCurrent = 0.1
	conf.BalCellVoltageDiff = 0.01

	conf.ThermistorBeta = 3435 // Semitec 103AT-5

	conf.NominalCapacity = nominalCapacity

	// 1C should be safe for all batteries
	limit := min(nominalCapacity, board.MaxCurrent)
	conf.DisOCLimit = limit
	conf.ChgOCLimit = limit
	conf.DisOCDelay = 320 * time.Millisecond
	conf.ChgOCDelay = 320 * time.Millisecond

	conf.DisSCLimit = conf.DisOCLimit * 2
	conf.DisSCDelay = 200 * time.Microsecond

	conf.DisUTLimit = -20
	conf.DisOTLimit = 45
	conf.ChgUTLimit = 0
	conf.ChgOTLimit = 45
	conf.TempLimitHyst = 5

	conf.ShuntResistance = board.ShuntResistance

	conf.CellOVDelay = 2 * time.Second
	conf.CellUVDelay = 2 * time.Second

	conf.DiodeOnCurrent = 0.5
	conf.DiodeOffCurrent = 0.1

	p, ok := profiles[chem]
	if !ok {
		return
	}
	conf.CellOVLimit = p.CellOVLimit
	conf.CellChgVoltage = p.CellChgVoltage
	conf.CellOVReset = p.CellOVReset
	conf.BalCellVoltageMin = p.BalCellVoltageMin
	conf.CellUVReset = p.CellUVReset
	conf.CellDisVoltage = p.CellDisVoltage
	conf.CellUVLimit = p.CellUVLimit
	conf.OCV = p.OCV
}

// Validate checks the invariants the protection logic relies on.
func (c *Config) Validate(board Board) error {
	if c.CellOVLimit <= 0 || c.CellUVLimit <= 0 {
		return fmt.Errorf("%w: cell voltage limits not set", ErrInvalidConfig)
	}
	if c.CellOVReset >= c.CellOVLimit {
		return fmt.Errorf("%w: cell OV reset %.3f V must be below limit %.3f V",
			ErrInvalidConfig, c.CellOVReset, c.CellOVLimit)
	}
	if c.CellUVReset <= c.CellUVLimit {
		return fmt.Errorf("%w: cell UV reset %.3f V must be above limit %.3f V",
			ErrInvalidConfig, c.CellUVReset, c.CellUVLimit)
	}
	if c.DisOCLimit > board.MaxCurrent || c.ChgOCLimit > board.MaxCurrent {
		return fmt.Errorf("%w: overcurrent limit exceeds board maximum %.1f A",
			ErrInvalidConfig, board.MaxCurrent)
	}
	if c.DisSCLimit != 2*c.DisOCLimit {
		return fmt.Errorf("%w: short circuit limit %.1f A must be twice discharge OC limit %.1f A",
			ErrInvalidConfig, c.DisSCLimit, c.DisOCLimit)
	}
	if c.DiodeOffCurrent >= c.DiodeOnCurrent {
		return fmt.Errorf("%w: diode emulation off current %.2f A must be below on current %.2f A",
			ErrInvalidConfig, c.DiodeOffCurrent, c.DiodeOnCurrent)
	}
	if c.OCV != nil && len(c.OCV) < 2 {
		return fmt.Errorf("%w: OCV curve needs at least 2 points, got %d", ErrInvalidConfig, len(c.OCV))
	}
	return nil
}
