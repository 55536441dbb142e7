package gpio

// Call records a single switch request made to FakeSwitches.
type Call struct {
	Path   string // "charge" or "discharge"
	Enable bool
}

// FakeSwitches is a test double that records switch requests.
type FakeSwitches struct {
	// Calls contains every request in order.
	Calls []Call

	// Charge and Discharge hold the current line levels.
	Charge    bool
	Discharge bool

	// Closed tracks if Close was called
	Closed bool

	// SetError, if set, will be returned by SetCharge and SetDischarge.
	// The level is still recorded.
	SetError error
}

// NewFakeSwitches creates FakeSwitches with both FETs off.
func NewFakeSwitches() *FakeSwitches {
	return &FakeSwitches{}
}

// SetCharge records the charge request.
func (f *FakeSwitches) SetCharge(enable bool) error {
	f.Calls = append(f.Calls, Call{Path: "charge", Enable: enable})
	f.Charge = enable
	return f.SetError
}

// SetDischarge records the discharge request.
func (f *FakeSwitches) SetDischarge(enable bool) error {
	f.Calls = append(f.Calls, Call{Path: "discharge", Enable: enable})
	f.Discharge = enable
	return f.SetError
}

// Close turns both FETs off and marks the switches as closed.
func (f *FakeSwitches) Close() error {
	f.Charge = false
	f.Discharge = false
	f.Closed = true
	return nil
}

// Reset clears recorded calls.
func (f *FakeSwitches) Reset() {
	f.Calls = nil
	f.Charge = false
	f.Discharge = false
	f.Closed = false
	f.SetError = nil
}
