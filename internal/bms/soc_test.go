package bms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSOCFromOCV(t *testing.T) {
	var conf Config
	InitConfig(&conf, ChemistryLFP, 10, testBoard)

	tests := []struct {
		name    string
		voltage float64
		want    float64
	}{
		{"above curve", 3.6, 100},
		{"top point", 3.392, 100},
		{"bottom point", 2.833, 0},
		{"below curve", 2.5, 0},
		{"exact 95 percent", 3.314, 95},
		{"exact 50 percent", 3.265, 50},
		{"between 100 and 95", 3.353, 97.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SOCFromOCV(&conf, tt.voltage)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.01)
		})
	}
}

func TestSOCFromOCVMonotonic(t *testing.T) {
	var conf Config
	InitConfig(&conf, ChemistryLFP, 10, testBoard)

	prev := -1.0
	for v := 2.8; v <= 3.45; v += 0.005 {
		soc, err := SOCFromOCV(&conf, v)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, soc, prev, "v=%.3f", v)
		prev = soc
	}
}

func TestSOCFromOCVWithoutCurve(t *testing.T) {
	var conf Config
	InitConfig(&conf, ChemistryNMC, 10, testBoard)

	_, err := SOCFromOCV(&conf, 3.7)
	assert.ErrorIs(t, err, ErrNoOCVCurve)
}

func TestSOCFromOCVFlatSegment(t *testing.T) {
	conf := Config{OCV: []float64{4.0, 3.5, 3.5, 3.0}}

	got, err := SOCFromOCV(&conf, 3.5)
	require.NoError(t, err)
	assert.InDelta(t, 66.67, got, 0.01)
}
