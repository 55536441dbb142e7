package bms

import "errors"

// ErrNoOCVCurve is returned when the config carries no OCV curve.
var ErrNoOCVCurve = errors.New("no OCV curve configured")

// SOCFromOCV estimates the state of charge (%) of a resting cell by linear
// interpolation over conf.OCV. Voltages outside the curve clamp to 0 or 100.
func SOCFromOCV(conf *Config, cellVoltage float64) (float64, error) {
	n := len(conf.OCV)
	if n < 2 {
		return 0, ErrNoOCVCurve
	}

	step := 100.0 / float64(n-1)

	if cellVoltage >= conf.OCV[0] {
		return 100, nil
	}
	if cellVoltage <= conf.OCV[n-1] {
		return 0, nil
	}

	// OCV is in descending order, find the first point below the voltage
	for i := 1; i < n; i++ {
		if cellVoltage >= conf.OCV[i] {
			hi, lo := conf.OCV[i-1], conf.OCV[i]
			socLo := 100 - float64(i)*step
			if hi == lo {
				return socLo, nil
			}
			return socLo + step*(cellVoltage-lo)/(hi-lo), nil
		}
	}
	return 0, nil
}
