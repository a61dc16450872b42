package intake

import (
	"testing"
	"time"
)

func ts(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func TestEntryStatus(t *testing.T) {
	taken := &Entry{Taken: true}
	if taken.Status() != StatusTaken {
		t.Errorf("taken entry status = %s", taken.Status())
	}
	missed := &Entry{Taken: false}
	if missed.Status() != StatusMissed {
		t.Errorf("missed entry status = %s", missed.Status())
	}
}

func TestStatusFor(t *testing.T) {
	today := ts(2024, 3, 15, 0)
	entries := []*Entry{
		{Taken: true, TakenTime: ts(2024, 3, 15, 8)},
		{Taken: false, TakenTime: ts(2024, 3, 14, 23)},
		{Taken: true, TakenTime: ts(2024, 3, 13, 9)},
	}

	if got := StatusFor(entries, today); got != StatusTaken {
		t.Errorf("StatusFor(today) = %s, want taken", got)
	}
	if got := StatusFor(entries, ts(2024, 3, 14, 0)); got != StatusMissed {
		t.Errorf("StatusFor(yesterday) = %s, want missed", got)
	}
	if got := StatusFor(entries, ts(2024, 3, 12, 0)); got != StatusNone {
		t.Errorf("StatusFor(unlogged day) = %q, want none", got)
	}
	if got := StatusFor(nil, today); got != StatusNone {
		t.Errorf("StatusFor(no entries) = %q, want none", got)
	}
}

func TestStatusForUsesFirstEntryOfDay(t *testing.T) {
	// Two entries on the same day: the first in slice order wins.
	day := ts(2024, 3, 15, 0)
	entries := []*Entry{
		{Taken: false, TakenTime: ts(2024, 3, 15, 20)},
		{Taken: true, TakenTime: ts(2024, 3, 15, 8)},
	}
	if got := StatusFor(entries, day); got != StatusMissed {
		t.Errorf("StatusFor = %s, want missed (first entry)", got)
	}
}

func TestEndOfDay(t *testing.T) {
	got := EndOfDay(ts(2024, 3, 15, 11))
	want := time.Date(2024, 3, 15, 23, 59, 59, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("EndOfDay = %v, want %v", got, want)
	}
}
