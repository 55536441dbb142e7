//go:build !linux

package gpio

import "errors"

// RealSwitches is not available on non-Linux platforms.
type RealSwitches struct{}

// NewRealSwitches returns an error on non-Linux platforms.
func NewRealSwitches(chipName string, pinCharge, pinDischarge int, activeLow bool) (*RealSwitches, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// SetCharge is not implemented on non-Linux platforms.
func (s *RealSwitches) SetCharge(enable bool) error {
	return errors.New("gpio: not supported")
}

// SetDischarge is not implemented on non-Linux platforms.
func (s *RealSwitches) SetDischarge(enable bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (s *RealSwitches) Close() error {
	return nil
}
