package clock

import (
	"testing"
	"time"
)

func TestManual_AdvanceAndSet(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m := NewManual(start)

	if got := m.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}
	if got := m.Advance(1500 * time.Millisecond); !got.Equal(start.Add(1500 * time.Millisecond)) {
		t.Fatalf("Advance() = %v", got)
	}
	later := start.Add(time.Hour)
	m.Set(later)
	if got := m.Now(); !got.Equal(later) {
		t.Fatalf("Now() after Set = %v, want %v", got, later)
	}
}

func TestManualTicker_TickBlocksUntilReceived(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	tk := m.NewTicker(time.Second).(*ManualTicker)

	if tk.Period() != time.Second {
		t.Fatalf("Period() = %v, want 1s", tk.Period())
	}
	if len(m.Tickers()) != 1 {
		t.Fatalf("Tickers() len = %d, want 1", len(m.Tickers()))
	}

	got := make(chan time.Time, 1)
	go func() { got <- <-tk.C() }()

	when := time.Unix(42, 0)
	if !tk.Tick(when) {
		t.Fatal("Tick() = false, want delivered")
	}
	if v := <-got; !v.Equal(when) {
		t.Errorf("received %v, want %v", v, when)
	}
}

func TestManualTicker_StopReleasesTick(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	tk := m.NewTicker(time.Second).(*ManualTicker)

	tk.Stop()
	tk.Stop()
	if tk.Tick(time.Unix(1, 0)) {
		t.Error("Tick() after Stop = true, want false")
	}
}

func TestReal_Ticker(t *testing.T) {
	tk := Real{}.NewTicker(time.Millisecond)
	defer tk.Stop()

	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not fire")
	}
}
