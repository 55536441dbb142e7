package heartbeat

import (
	"testing"
	"time"
)

func TestNewTickerInvalidSpec(t *testing.T) {
	for _, spec := range []string{"", "every minute", "* * *", "0 0 25 * * *"} {
		if _, err := NewTicker(spec); err == nil {
			t.Errorf("%q: expected error", spec)
		}
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		spec string
		now  time.Time
		want time.Time
	}{
		{
			"0 */15 * * * *",
			time.Date(2026, 1, 1, 12, 3, 0, 0, time.UTC),
			time.Date(2026, 1, 1, 12, 15, 0, 0, time.UTC),
		},
		{
			"30 0 * * * *",
			time.Date(2026, 1, 1, 12, 3, 0, 0, time.UTC),
			time.Date(2026, 1, 1, 13, 0, 30, 0, time.UTC),
		},
		{
			"@every 5m",
			time.Date(2026, 1, 1, 12, 3, 0, 0, time.UTC),
			time.Date(2026, 1, 1, 12, 8, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		tk, err := NewTicker(tt.spec)
		if err != nil {
			t.Fatalf("%q: %v", tt.spec, err)
		}
		if got := tk.Next(tt.now); !got.Equal(tt.want) {
			t.Errorf("%q: got %v, want %v", tt.spec, got, tt.want)
		}
	}
}

func TestFireDropsWhenFull(t *testing.T) {
	tk, err := NewTicker("@every 1h")
	if err != nil {
		t.Fatal(err)
	}
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tk.now = func() time.Time { return t0 }

	tk.fire()
	tk.now = func() time.Time { return t0.Add(time.Hour) }
	tk.fire() // dropped, must not block

	select {
	case got := <-tk.C():
		if !got.Equal(t0) {
			t.Errorf("got %v, want first tick %v", got, t0)
		}
	default:
		t.Fatal("expected a queued tick")
	}

	select {
	case got := <-tk.C():
		t.Errorf("unexpected second tick %v", got)
	default:
	}
}

func TestStartDeliversTicks(t *testing.T) {
	tk, err := NewTicker("@every 1s")
	if err != nil {
		t.Fatal(err)
	}
	tk.Start()
	defer tk.Stop()

	select {
	case <-tk.C():
	case <-time.After(3 * time.Second):
		t.Fatal("no tick within 3s")
	}
}
