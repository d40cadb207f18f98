package scan

import (
	"testing"
	"time"
)

func TestDebouncer_SuppressesRepeatWithinCooldown(t *testing.T) {
	d := NewDebouncer(3 * time.Second)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if !d.Allow("11122233344", base) {
		t.Fatal("first delivery should pass")
	}
	if d.Allow("11122233344", base.Add(1*time.Second)) {
		t.Error("repeat inside cooldown should be suppressed")
	}
	if d.Allow("11122233344", base.Add(3*time.Second)) {
		t.Error("repeat at exactly the cooldown boundary should be suppressed")
	}
	if !d.Allow("11122233344", base.Add(3*time.Second+time.Millisecond)) {
		t.Error("repeat after the cooldown should pass")
	}
}

func TestDebouncer_DifferentPayloadPassesImmediately(t *testing.T) {
	d := NewDebouncer(3 * time.Second)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if !d.Allow("11122233344", base) {
		t.Fatal("first delivery should pass")
	}
	if !d.Allow("55566677788", base.Add(100*time.Millisecond)) {
		t.Error("a different payload is never throttled")
	}
	// The window now belongs to the second payload; the first may repeat.
	if !d.Allow("11122233344", base.Add(200*time.Millisecond)) {
		t.Error("alternating payloads should all pass")
	}
}

func TestDebouncer_SuppressedScanDoesNotExtendWindow(t *testing.T) {
	d := NewDebouncer(3 * time.Second)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	d.Allow("11122233344", base)
	d.Allow("11122233344", base.Add(2*time.Second)) // suppressed

	// 3s after the delivery, not 3s after the suppressed attempt.
	if !d.Allow("11122233344", base.Add(3*time.Second+time.Millisecond)) {
		t.Error("window should be measured from the last delivery")
	}
}

func TestDebouncer_ZeroCooldownFallsBackToDefault(t *testing.T) {
	d := NewDebouncer(0)
	if d.cooldown != DefaultCooldown {
		t.Errorf("cooldown = %s, want %s", d.cooldown, DefaultCooldown)
	}
}
