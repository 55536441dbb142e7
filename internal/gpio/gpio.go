// Package gpio drives the charge and discharge FET gates.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Switches drives the two FET gate lines. It satisfies bms.Actuator.
type Switches interface {
	// SetCharge turns the charge FET on or off.
	SetCharge(enable bool) error

	// SetDischarge turns the discharge FET on or off.
	SetDischarge(enable bool) error

	// Close turns both FETs off and releases GPIO resources.
	Close() error
}

// Default pin definitions (BCM numbering)
const (
	DefaultPinCharge    = 23
	DefaultPinDischarge = 24
)

// DefaultChip is the GPIO chip the FET drivers are wired to.
const DefaultChip = "gpiochip0"
