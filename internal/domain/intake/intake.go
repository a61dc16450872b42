// Package intake implements the append-only medication intake log.
//
// Every dose event is a new row; rows are never updated or deleted, so the
// log is a faithful history of what the patient reported.
package intake

import (
	"time"

	"github.com/medipal/medtrack/internal/domain/medication"
)

// Status is the intake outcome for one dose slot on one day.
type Status string

const (
	StatusTaken  Status = "taken"
	StatusMissed Status = "missed"
	// StatusNone means no log row exists for the day.
	StatusNone Status = ""
)

// Entry is one logged intake event for a medication row.
type Entry struct {
	ID                int64     `json:"id"`
	MedicationEntryID int64     `json:"medication_entry_id"`
	Taken             bool      `json:"taken"`
	TakenTime         time.Time `json:"taken_time"`
}

// Status maps the taken flag to its display status.
func (e *Entry) Status() Status {
	if e.Taken {
		return StatusTaken
	}
	return StatusMissed
}

// StatusFor returns the status of the first entry logged on the given day,
// or StatusNone when none exists. Entries are expected newest first.
func StatusFor(entries []*Entry, day time.Time) Status {
	d := medication.DateOf(day)
	for _, e := range entries {
		if medication.DateOf(e.TakenTime).Equal(d) {
			return e.Status()
		}
	}
	return StatusNone
}

// EndOfDay returns the 23:59:59 timestamp used when backfilling missed
// entries for a day the patient never logged.
func EndOfDay(day time.Time) time.Time {
	d := medication.DateOf(day)
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, d.Location())
}
