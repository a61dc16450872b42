// Package adherence computes adherence statistics from the intake log.
//
// Rates are nilable: nil means no data, which callers must render
// differently from a measured 0%. The one exception is the today summary's
// completion rate, which reports 0 for an empty day.
package adherence

import (
	"math"

	"github.com/medipal/medtrack/internal/domain/intake"
)

// Rate returns the adherence percentage for taken out of total logged doses,
// rounded half up, or nil when there is no data.
func Rate(taken, total int) *int {
	if total == 0 {
		return nil
	}
	r := int(math.Round(100 * float64(taken) / float64(total)))
	return &r
}

// Summary is the patient's at-a-glance adherence picture for one day.
type Summary struct {
	Taken      int `json:"taken"`
	Total      int `json:"total"`
	Remaining  int `json:"remaining"`
	Overdue    int `json:"overdue"`
	ActiveMeds int `json:"active_meds"`
	// CompletionRate is 0 when Total is 0; unlike the rate queries it never
	// distinguishes no-data from 0%.
	CompletionRate int `json:"completion_rate"`
}

// Summarize builds the day summary from per-slot statuses. The completion
// rate truncates rather than rounds, matching how the summary has always
// been displayed.
func Summarize(statuses []intake.Status, activeMeds int) Summary {
	s := Summary{Total: len(statuses), ActiveMeds: activeMeds}
	for _, st := range statuses {
		switch st {
		case intake.StatusTaken:
			s.Taken++
		case intake.StatusMissed:
			s.Overdue++
		}
	}
	s.Remaining = s.Total - s.Taken - s.Overdue
	if s.Total > 0 {
		s.CompletionRate = s.Taken * 100 / s.Total
	}
	return s
}
