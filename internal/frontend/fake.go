package frontend

// FakeSource is a test double that returns scripted measurements.
type FakeSource struct {
	// Samples contains scripted measurements to return.
	// Each call to Latest() consumes the next sample.
	Samples []Measurements

	// index tracks current position in Samples
	index int
}

// NewFakeSource creates a FakeSource with the given samples.
func NewFakeSource(samples []Measurements) *FakeSource {
	return &FakeSource{Samples: samples}
}

// Latest returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
// With no samples it reports that nothing was received yet.
func (f *FakeSource) Latest() (Measurements, bool) {
	if len(f.Samples) == 0 {
		return Measurements{}, false
	}

	m := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return m, true
}

// Reset rewinds to the first sample.
func (f *FakeSource) Reset() {
	f.index = 0
}
