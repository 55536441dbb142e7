package frontend

import (
	"testing"
	"time"

	"github.com/sweeney/bms-controller/internal/bms"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sample() Measurements {
	return Measurements{
		Timestamp:    t0,
		CellVoltages: []float64{3.31, 3.35, 3.29, 3.33},
		PackVoltage:  13.28,
		PackCurrent:  -2.5,
		Temperatures: []float64{21.5, 24.0, 19.0},
		ErrorFlags:   bms.Flags(bms.FaultChgOvertemp),
		Full:         false,
		Empty:        true,
	}
}

func TestApply(t *testing.T) {
	var st bms.Status
	Apply(&st, sample())

	if st.ConnectedCells != 4 {
		t.Errorf("ConnectedCells: got %d, want 4", st.ConnectedCells)
	}
	if st.CellVoltageMin != 3.29 {
		t.Errorf("CellVoltageMin: got %v, want 3.29", st.CellVoltageMin)
	}
	if st.CellVoltageMax != 3.35 {
		t.Errorf("CellVoltageMax: got %v, want 3.35", st.CellVoltageMax)
	}
	if d := st.CellVoltageAvg - 3.32; d > 1e-9 || d < -1e-9 {
		t.Errorf("CellVoltageAvg: got %v, want 3.32", st.CellVoltageAvg)
	}
	if st.TempMin != 19.0 || st.TempMax != 24.0 {
		t.Errorf("temps: got %v..%v, want 19..24", st.TempMin, st.TempMax)
	}
	if st.PackCurrent != -2.5 {
		t.Errorf("PackCurrent: got %v", st.PackCurrent)
	}
	if !st.ErrorFlags.Has(bms.FaultChgOvertemp) {
		t.Errorf("ErrorFlags: got %s", st.ErrorFlags)
	}
	if !st.Empty || st.Full {
		t.Errorf("Full/Empty: got %v/%v", st.Full, st.Empty)
	}
}

func TestApplyKeepsCellsWhenMissing(t *testing.T) {
	st := bms.Status{ConnectedCells: 4, CellVoltageMin: 3.1, CellVoltageMax: 3.2}
	Apply(&st, Measurements{PackCurrent: 1})

	if st.ConnectedCells != 4 || st.CellVoltageMin != 3.1 || st.CellVoltageMax != 3.2 {
		t.Errorf("cell data should be kept, got %+v", st)
	}
}

func TestCollectorRefreshFaults(t *testing.T) {
	var conf bms.Config
	bms.InitConfig(&conf, bms.ChemistryLFP, 10, bms.Board{MaxCurrent: 30})
	var st bms.Status
	bms.InitStatus(&st)

	src := NewFakeSource([]Measurements{sample()})
	c := NewCollector(src, fixedClock(t0.Add(time.Second)), 5*time.Second)

	c.RefreshFaults(&conf, &st)

	if !c.Received() {
		t.Error("expected Received after first sample")
	}
	if c.Stale() {
		t.Error("sample one second old should not be stale")
	}
	if st.ErrorFlags != bms.Flags(bms.FaultChgOvertemp) {
		t.Errorf("ErrorFlags: got %s", st.ErrorFlags)
	}
	if !st.NoIdleTimestamp.Equal(t0.Add(time.Second)) {
		t.Errorf("NoIdleTimestamp: got %v, want reset by 2.5 A discharge", st.NoIdleTimestamp)
	}
}

func TestCollectorNoSample(t *testing.T) {
	var conf bms.Config
	st := bms.Status{ErrorFlags: bms.Flags(bms.FaultOpenWire)}

	c := NewCollector(NewFakeSource(nil), fixedClock(t0), 0)
	c.RefreshFaults(&conf, &st)

	if c.Received() {
		t.Error("Received should be false without samples")
	}
	if st.ErrorFlags != bms.Flags(bms.FaultOpenWire) {
		t.Errorf("ErrorFlags changed without a sample: %s", st.ErrorFlags)
	}
}

func TestCollectorStale(t *testing.T) {
	var conf bms.Config
	var st bms.Status
	now := t0.Add(10 * time.Second)
	src := NewFakeSource([]Measurements{sample()})
	c := NewCollector(src, func() time.Time { return now }, 5*time.Second)

	c.RefreshFaults(&conf, &st)
	if !c.Stale() {
		t.Error("expected stale for 10s old sample")
	}
	if !st.Full || !st.Empty {
		t.Errorf("stale sample should block both paths, got Full=%v Empty=%v", st.Full, st.Empty)
	}

	fresh := sample()
	fresh.Timestamp = now
	fresh.Empty = false
	src.Samples = []Measurements{fresh}
	src.Reset()
	c.RefreshFaults(&conf, &st)
	if c.Stale() {
		t.Error("expected fresh after new sample")
	}
	if st.Full || st.Empty {
		t.Errorf("fresh sample should restore Full/Empty, got %v/%v", st.Full, st.Empty)
	}
}

func TestCollectorStaleDisablesPaths(t *testing.T) {
	var conf bms.Config
	bms.InitConfig(&conf, bms.ChemistryLFP, 10, bms.Board{MaxCurrent: 30})
	var st bms.Status
	bms.InitStatus(&st)

	healthy := sample()
	healthy.ErrorFlags = 0
	healthy.Empty = false

	now := t0
	c := NewCollector(NewFakeSource([]Measurements{healthy}), func() time.Time { return now }, 5*time.Second)

	c.RefreshFaults(&conf, &st)
	if !bms.ChargeAllowed(&st) || !bms.DischargeAllowed(&st) {
		t.Fatal("fresh healthy sample should allow both paths")
	}

	now = t0.Add(time.Hour)
	c.RefreshFaults(&conf, &st)
	if bms.ChargeAllowed(&st) || bms.DischargeAllowed(&st) {
		t.Errorf("hour old sample still allows charge=%v discharge=%v",
			bms.ChargeAllowed(&st), bms.DischargeAllowed(&st))
	}
}

func TestCollectorSeedsIdleTimestamp(t *testing.T) {
	var conf bms.Config
	bms.InitConfig(&conf, bms.ChemistryLFP, 10, bms.Board{MaxCurrent: 30})
	var st bms.Status
	bms.InitStatus(&st)

	c := NewCollector(NewFakeSource(nil), fixedClock(t0), 0)
	c.RefreshFaults(&conf, &st)
	if !st.NoIdleTimestamp.Equal(t0) {
		t.Errorf("NoIdleTimestamp: got %v, want first refresh time", st.NoIdleTimestamp)
	}

	earlier := t0.Add(-time.Minute)
	st.NoIdleTimestamp = earlier
	c.RefreshFaults(&conf, &st)
	if !st.NoIdleTimestamp.Equal(earlier) {
		t.Errorf("NoIdleTimestamp: got %v, want existing value kept", st.NoIdleTimestamp)
	}
}

func TestHolder(t *testing.T) {
	var h Holder
	if _, ok := h.Latest(); ok {
		t.Fatal("empty holder should report false")
	}

	m := sample()
	h.Store(m)
	got, ok := h.Latest()
	if !ok {
		t.Fatal("expected sample after Store")
	}
	if got.PackCurrent != m.PackCurrent {
		t.Errorf("PackCurrent: got %v", got.PackCurrent)
	}

	// returned slices are copies
	got.CellVoltages[0] = 0
	again, _ := h.Latest()
	if again.CellVoltages[0] != 3.31 {
		t.Errorf("holder data was mutated through returned slice: %v", again.CellVoltages)
	}
}

func TestSettleGuard(t *testing.T) {
	now := t0
	clock := func() time.Time { return now }
	src := NewFakeSource(nil)
	c := NewCollector(src, clock, 0)
	g := NewSettleGuard(t0, 2*time.Second, clock, c)

	if !g.Inhibited() {
		t.Error("should be inhibited at start")
	}

	now = t0.Add(3 * time.Second)
	if !g.Inhibited() {
		t.Error("should be inhibited until a sample arrives")
	}

	src.Samples = []Measurements{sample()}
	c.RefreshFaults(&bms.Config{}, &bms.Status{})
	if g.Inhibited() {
		t.Error("should be released after delay and first sample")
	}
}

func TestSettleGuardWithoutCollector(t *testing.T) {
	now := t0.Add(time.Second)
	g := NewSettleGuard(t0, time.Second, func() time.Time { return now }, nil)
	if g.Inhibited() {
		t.Error("delay elapsed exactly, should not inhibit")
	}
}

func TestFakeSourceRepeatsLast(t *testing.T) {
	a, b := sample(), sample()
	b.PackCurrent = 7
	f := NewFakeSource([]Measurements{a, b})

	f.Latest()
	for i := 0; i < 3; i++ {
		m, ok := f.Latest()
		if !ok || m.PackCurrent != 7 {
			t.Errorf("read %d: got %v ok=%v, want last sample", i, m.PackCurrent, ok)
		}
	}
}
