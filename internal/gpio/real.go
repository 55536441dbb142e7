//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealSwitches drives FET gate lines on actual hardware using the Linux GPIO
// character device.
type RealSwitches struct {
	chip      *gpiocdev.Chip
	chgLine   *gpiocdev.Line
	disLine   *gpiocdev.Line
	activeLow bool
}

// NewRealSwitches requests both lines as outputs, initially off.
// activeLow inverts the lines for gate drivers that switch on a low level.
func NewRealSwitches(chipName string, pinCharge, pinDischarge int, activeLow bool) (*RealSwitches, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("bms-controller"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	chgLine, err := chip.RequestLine(pinCharge, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request charge pin %d: %w", pinCharge, err)
	}

	disLine, err := chip.RequestLine(pinDischarge, opts...)
	if err != nil {
		chgLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request discharge pin %d: %w", pinDischarge, err)
	}

	return &RealSwitches{
		chip:      chip,
		chgLine:   chgLine,
		disLine:   disLine,
		activeLow: activeLow,
	}, nil
}

// SetCharge turns the charge FET on or off.
func (s *RealSwitches) SetCharge(enable bool) error {
	if err := s.chgLine.SetValue(level(enable)); err != nil {
		return fmt.Errorf("set charge pin: %w", err)
	}
	return nil
}

// SetDischarge turns the discharge FET on or off.
func (s *RealSwitches) SetDischarge(enable bool) error {
	if err := s.disLine.SetValue(level(enable)); err != nil {
		return fmt.Errorf("set discharge pin: %w", err)
	}
	return nil
}

// Close turns both FETs off and releases GPIO resources.
// The lines are left as inputs biased towards the inactive level so that the
// gate drivers stay off while the daemon is not running.
func (s *RealSwitches) Close() error {
	var errs []error

	for name, line := range map[string]*gpiocdev.Line{"charge": s.chgLine, "discharge": s.disLine} {
		if line == nil {
			continue
		}
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("switch off %s pin: %w", name, err))
		}
		if err := line.Reconfigure(releaseOpts(s.activeLow)...); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
		}
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// releaseOpts returns the line config for a released gate line. Bias acts on
// the physical level, so active-low drivers need a pull-up to stay off.
func releaseOpts(activeLow bool) []gpiocdev.LineConfigOption {
	if activeLow {
		return []gpiocdev.LineConfigOption{gpiocdev.AsInput, gpiocdev.WithPullUp}
	}
	return []gpiocdev.LineConfigOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
}

func level(on bool) int {
	if on {
		return 1
	}
	return 0
}
