package medication

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func TestStatusOn(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		end   *time.Time
		today time.Time
		want  Status
	}{
		{"open ended, started", date(2024, 1, 1), nil, date(2024, 6, 1), StatusActive},
		{"starts today", date(2024, 6, 1), nil, date(2024, 6, 1), StatusActive},
		{"ends today", date(2024, 1, 1), datePtr(2024, 6, 1), date(2024, 6, 1), StatusActive},
		{"not started yet", date(2024, 7, 1), nil, date(2024, 6, 1), StatusInactive},
		{"ended yesterday", date(2024, 1, 1), datePtr(2024, 1, 31), date(2024, 2, 1), StatusInactive},
		{"inverted range never active", date(2024, 3, 1), datePtr(2024, 2, 1), date(2024, 2, 15), StatusInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOn(tt.start, tt.end, tt.today); got != tt.want {
				t.Errorf("StatusOn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusOnIgnoresTimeOfDay(t *testing.T) {
	// A row ending today must stay active until midnight even when the
	// comparison timestamp carries a late clock time.
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	today := time.Date(2024, 6, 1, 23, 45, 0, 0, time.UTC)
	if got := StatusOn(date(2024, 1, 1), &end, today); got != StatusActive {
		t.Errorf("StatusOn() = %v, want %v", got, StatusActive)
	}
}

func TestParseTiming(t *testing.T) {
	for _, valid := range []string{"Morning", "Afternoon", "Evening"} {
		if _, err := ParseTiming(valid); err != nil {
			t.Errorf("ParseTiming(%q) unexpected error: %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "morning", "Night", "NOON"} {
		if _, err := ParseTiming(invalid); err == nil {
			t.Errorf("ParseTiming(%q) expected error", invalid)
		}
	}
}

func TestMedicationStatusOn(t *testing.T) {
	m := &Medication{
		StartDate: date(2024, 1, 1),
		EndDate:   datePtr(2024, 1, 31),
	}
	if got := m.StatusOn(date(2024, 2, 1)); got != StatusInactive {
		t.Errorf("StatusOn(2024-02-01) = %v, want inactive", got)
	}
	if got := m.StatusOn(date(2024, 1, 15)); got != StatusActive {
		t.Errorf("StatusOn(2024-01-15) = %v, want active", got)
	}
}
