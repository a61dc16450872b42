package adherence

import (
	"testing"

	"github.com/medipal/medtrack/internal/domain/intake"
)

func TestRate(t *testing.T) {
	tests := []struct {
		name  string
		taken int
		total int
		want  *int
	}{
		{"no data", 0, 0, nil},
		{"all taken", 4, 4, intp(100)},
		{"none taken", 0, 3, intp(0)},
		{"one third rounds down", 1, 3, intp(33)},
		{"two thirds rounds up", 2, 3, intp(67)},
		{"exact half rounds up", 1, 8, intp(13)},
		{"three quarters", 3, 4, intp(75)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rate(tt.taken, tt.total)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("Rate(%d, %d) = %v, want %v", tt.taken, tt.total, fmtp(got), fmtp(tt.want))
			}
			if got != nil && *got != *tt.want {
				t.Errorf("Rate(%d, %d) = %d, want %d", tt.taken, tt.total, *got, *tt.want)
			}
		})
	}
}

func TestRateNilIsNotZero(t *testing.T) {
	// A patient who never logged anything must not look perfectly
	// non-adherent.
	if got := Rate(0, 0); got != nil {
		t.Errorf("Rate(0, 0) = %d, want nil", *got)
	}
	if got := Rate(0, 5); got == nil || *got != 0 {
		t.Errorf("Rate(0, 5) = %v, want 0", fmtp(got))
	}
}

func TestSummarize(t *testing.T) {
	statuses := []intake.Status{
		intake.StatusTaken,
		intake.StatusTaken,
		intake.StatusMissed,
		intake.StatusNone,
		intake.StatusNone,
	}

	s := Summarize(statuses, 3)

	if s.Taken != 2 {
		t.Errorf("Taken = %d, want 2", s.Taken)
	}
	if s.Total != 5 {
		t.Errorf("Total = %d, want 5", s.Total)
	}
	if s.Overdue != 1 {
		t.Errorf("Overdue = %d, want 1", s.Overdue)
	}
	if s.Remaining != 2 {
		t.Errorf("Remaining = %d, want 2", s.Remaining)
	}
	if s.ActiveMeds != 3 {
		t.Errorf("ActiveMeds = %d, want 3", s.ActiveMeds)
	}
	// 2/5 = 40%
	if s.CompletionRate != 40 {
		t.Errorf("CompletionRate = %d, want 40", s.CompletionRate)
	}
}

func TestSummarizeCompletionRateTruncates(t *testing.T) {
	statuses := []intake.Status{
		intake.StatusTaken,
		intake.StatusTaken,
		intake.StatusNone,
	}
	s := Summarize(statuses, 0)
	// 2/3 truncates to 66, where Rate would round to 67.
	if s.CompletionRate != 66 {
		t.Errorf("CompletionRate = %d, want 66", s.CompletionRate)
	}
}

func TestSummarizeEmptyDay(t *testing.T) {
	s := Summarize(nil, 0)
	if s.Total != 0 || s.Taken != 0 || s.Remaining != 0 || s.Overdue != 0 {
		t.Errorf("empty summary = %+v", s)
	}
	// The summary reports 0 for an empty day, not nil.
	if s.CompletionRate != 0 {
		t.Errorf("CompletionRate = %d, want 0", s.CompletionRate)
	}
}

func intp(v int) *int { return &v }

func fmtp(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
