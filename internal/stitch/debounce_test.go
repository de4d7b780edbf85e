package stitch

import (
	"fmt"
	"testing"
	"time"
)

func TestDebouncer_RepeatedTextRejected(t *testing.T) {
	d := NewDebouncer(0, 0)
	now := time.Now()

	if !d.ShouldEmit("Hello", now) {
		t.Fatal("first emission rejected")
	}
	if d.ShouldEmit("Hello", now.Add(50*time.Millisecond)) {
		t.Error("repeat within window accepted")
	}
	// The seen set rejects repeats even past the debounce window.
	if d.ShouldEmit("Hello", now.Add(5*time.Second)) {
		t.Error("retained repeat accepted")
	}
	if !d.ShouldEmit("Goodbye", now.Add(10*time.Millisecond)) {
		t.Error("distinct text rejected")
	}
}

func TestDebouncer_RingBound(t *testing.T) {
	d := NewDebouncer(0, 0)
	now := time.Now()

	for i := 0; i < 301; i++ {
		if !d.ShouldEmit(fmt.Sprintf("line %d", i), now.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("unique line %d rejected", i)
		}
	}
	if got := d.Len(); got != DefaultDedupCapacity {
		t.Errorf("retained %d hashes, want %d", got, DefaultDedupCapacity)
	}
	// line 0 was the oldest entry and must have been evicted.
	if !d.ShouldEmit("line 0", now.Add(time.Hour)) {
		t.Error("evicted entry still rejected")
	}
	// line 1 is still retained.
	if d.ShouldEmit("line 1", now.Add(2*time.Hour)) {
		t.Error("retained entry accepted")
	}
}

func TestDebouncer_Reset(t *testing.T) {
	d := NewDebouncer(0, 0)
	now := time.Now()
	d.ShouldEmit("Hello", now)

	d.Reset()
	if got := d.Len(); got != 0 {
		t.Fatalf("Len after Reset = %d, want 0", got)
	}
	if !d.ShouldEmit("Hello", now.Add(time.Millisecond)) {
		t.Error("text from before Reset still suppressed")
	}
}

func TestDebouncer_SmallCapacity(t *testing.T) {
	d := NewDebouncer(time.Millisecond, 2)
	now := time.Now()

	d.ShouldEmit("a", now)
	d.ShouldEmit("b", now.Add(time.Second))
	d.ShouldEmit("c", now.Add(2*time.Second))
	if got := d.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}
	if !d.ShouldEmit("a", now.Add(3*time.Second)) {
		t.Error("oldest entry should have been evicted")
	}
	if d.ShouldEmit("c", now.Add(4*time.Second)) {
		t.Error("newest entry should still be retained")
	}
}
