// Package medication implements the authoritative per-patient medication store.
package medication

import (
	"fmt"
	"time"
)

// Timing is the scheduled time-of-day slot for a dose. A medication taken at
// several times of day is modeled as sibling rows sharing a drug ID, one per slot.
type Timing string

const (
	TimingMorning   Timing = "Morning"
	TimingAfternoon Timing = "Afternoon"
	TimingEvening   Timing = "Evening"
)

// ParseTiming validates a timing slot string.
func ParseTiming(s string) (Timing, error) {
	switch Timing(s) {
	case TimingMorning, TimingAfternoon, TimingEvening:
		return Timing(s), nil
	}
	return "", fmt.Errorf("invalid timing %q", s)
}

// Status is derived from the date range on every read; it is never stored.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Medication is one prescribed-medication row for a patient.
// PatientID and DrugID are immutable after creation; there is no delete.
// A medication is ended by setting EndDate.
type Medication struct {
	ID           int64      `json:"id"`
	PatientID    int64      `json:"patient_id"`
	DrugID       int64      `json:"drug_id"`
	Dose         string     `json:"dose"`
	Instructions string     `json:"instructions"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	PrescribedBy string     `json:"prescribed_by"`
	Timing       Timing     `json:"timing"`
	DrugName     string     `json:"drug_name,omitempty"`
}

// StatusOn derives the status as a pure function of the date range and a
// reference day: active iff start <= today and (end is null or end >= today).
// Callers must not cache the result across day boundaries.
func StatusOn(start time.Time, end *time.Time, today time.Time) Status {
	d := DateOf(today)
	if DateOf(start).After(d) {
		return StatusInactive
	}
	if end != nil && DateOf(*end).Before(d) {
		return StatusInactive
	}
	return StatusActive
}

// StatusOn reports the medication's status on the given day.
func (m *Medication) StatusOn(today time.Time) Status {
	return StatusOn(m.StartDate, m.EndDate, today)
}

// DateOf truncates a timestamp to its calendar day.
func DateOf(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}
