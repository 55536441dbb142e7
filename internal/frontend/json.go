package frontend

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/bms-controller/internal/bms"
)

// MeasurementsJSON is the wire format the AFE process publishes.
type MeasurementsJSON struct {
	Timestamp    string    `json:"timestamp"`
	CellVoltages []float64 `json:"cell_voltages"`
	PackVoltage  float64   `json:"pack_voltage"`
	PackCurrent  float64   `json:"pack_current"`
	Temperatures []float64 `json:"temperatures"`
	ErrorFlags   *uint32   `json:"error_flags"`
	Full         bool      `json:"full"`
	Empty        bool      `json:"empty"`
}

// DecodeMeasurements parses an AFE payload. A missing timestamp is replaced by
// received; missing cell voltages or error flags are rejected.
func DecodeMeasurements(data []byte, received time.Time) (Measurements, error) {
	var mj MeasurementsJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return Measurements{}, fmt.Errorf("decode measurements: %w", err)
	}
	if len(mj.CellVoltages) == 0 {
		return Measurements{}, errors.New("decode measurements: no cell voltages")
	}
	if mj.ErrorFlags == nil {
		return Measurements{}, errors.New("decode measurements: no error flags")
	}

	ts := received
	if mj.Timestamp != "" {
		t, err := time.Parse(time.RFC3339Nano, mj.Timestamp)
		if err != nil {
			return Measurements{}, fmt.Errorf("parse timestamp: %w", err)
		}
		ts = t
	}

	return Measurements{
		Timestamp:    ts,
		CellVoltages: mj.CellVoltages,
		PackVoltage:  mj.PackVoltage,
		PackCurrent:  mj.PackCurrent,
		Temperatures: mj.Temperatures,
		ErrorFlags:   bms.ErrorFlags(*mj.ErrorFlags),
		Full:         mj.Full,
		Empty:        mj.Empty,
	}, nil
}

// EncodeMeasurements is the inverse of DecodeMeasurements.
func EncodeMeasurements(m Measurements) ([]byte, error) {
	flags := uint32(m.ErrorFlags)
	return json.Marshal(MeasurementsJSON{
		Timestamp:    m.Timestamp.UTC().Format(time.RFC3339Nano),
		CellVoltages: m.CellVoltages,
		PackVoltage:  m.PackVoltage,
		PackCurrent:  m.PackCurrent,
		Temperatures: m.Temperatures,
		ErrorFlags:   &flags,
		Full:         m.Full,
		Empty:        m.Empty,
	})
}
