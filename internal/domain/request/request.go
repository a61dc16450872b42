// Package request implements the clinician medication-change request workflow.
//
// A clinician proposes adding or editing a patient's medication; the patient
// must explicitly approve before the change reaches the medication store.
package request

import (
	"errors"
	"fmt"
	"time"

	"github.com/medipal/medtrack/internal/domain/medication"
)

// Type distinguishes a proposal to add a new medication from one that edits
// an existing row.
type Type string

const (
	TypeAdd  Type = "add"
	TypeEdit Type = "edit"
)

// ParseType validates a request type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeAdd, TypeEdit:
		return Type(s), nil
	}
	return "", fmt.Errorf("invalid request type %q", s)
}

// State is the request lifecycle state, derived from the responded/approved
// pair. Accepted and Rejected are terminal.
type State string

const (
	StatePending  State = "pending"
	StateAccepted State = "accepted"
	StateRejected State = "rejected"
)

// ErrAlreadyResponded indicates a second response to a request whose
// decision is already recorded. Responses are single-shot.
var ErrAlreadyResponded = errors.New("request already responded")

// ErrMissingTarget indicates an edit request without a target medication.
var ErrMissingTarget = errors.New("edit request requires a target medication")

// ErrNotFound indicates the request does not exist.
var ErrNotFound = errors.New("request not found")

// Request is one clinician-authored medication change proposal.
// The display-name fields are filled by repository joins and are not stored
// on the request row itself.
type Request struct {
	ID           int64             `json:"id"`
	PatientID    int64             `json:"patient_id"`
	ClinicianID  int64             `json:"clinician_id"`
	DrugID       int64             `json:"drug_id"`
	Dose         string            `json:"dose"`
	Instructions string            `json:"instructions"`
	StartDate    time.Time         `json:"start_date"`
	EndDate      *time.Time        `json:"end_date,omitempty"`
	Timing       medication.Timing `json:"timing"`
	Type         Type              `json:"request_type"`
	TargetMedID  *int64            `json:"target_medication_id,omitempty"`
	Responded    bool              `json:"responded"`
	Approved     bool              `json:"approved"`
	CreatedAt    time.Time         `json:"created_at"`
	RespondedAt  *time.Time        `json:"responded_at,omitempty"`

	DrugName      string `json:"drug_name,omitempty"`
	ClinicianName string `json:"clinician_name,omitempty"`
	PatientName   string `json:"patient_name,omitempty"`
}

// Validate checks the creation-time constraints.
func (r *Request) Validate() error {
	if _, err := ParseType(string(r.Type)); err != nil {
		return err
	}
	if _, err := medication.ParseTiming(string(r.Timing)); err != nil {
		return err
	}
	if r.Type == TypeEdit && r.TargetMedID == nil {
		return ErrMissingTarget
	}
	return nil
}

// State derives the lifecycle state. A request is pending until responded;
// an unresponded request's approved flag carries no meaning.
func (r *Request) State() State {
	if !r.Responded {
		return StatePending
	}
	if r.Approved {
		return StateAccepted
	}
	return StateRejected
}

// Respond records the patient's decision. It guards the terminal states:
// a request can be responded to exactly once.
func (r *Request) Respond(approved bool, at time.Time) error {
	if r.Responded {
		return ErrAlreadyResponded
	}
	r.Responded = true
	r.Approved = approved
	r.RespondedAt = &at
	return nil
}

// FieldChange is an old/new pair for one changed field, both rendered as
// strings for display.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Diff compares an edit request against the current medication row and
// returns the changed subset of the mutable fields. It returns an empty map
// for add requests or when the target row no longer exists.
func (r *Request) Diff(current *medication.Medication) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	if r.Type != TypeEdit || current == nil {
		return changes
	}

	compare := func(field, oldV, newV string) {
		if oldV != newV {
			changes[field] = FieldChange{Old: oldV, New: newV}
		}
	}

	compare("dose", current.Dose, r.Dose)
	compare("instructions", current.Instructions, r.Instructions)
	compare("start_date", formatDate(&current.StartDate), formatDate(&r.StartDate))
	compare("end_date", formatDate(current.EndDate), formatDate(r.EndDate))
	compare("prescribed_by", current.PrescribedBy, r.ClinicianName)
	compare("timing", string(current.Timing), string(r.Timing))
	return changes
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// Partition splits requests into pending, accepted and rejected buckets,
// preserving order. The clinician view renders the three groups separately.
func Partition(reqs []*Request) (pending, accepted, rejected []*Request) {
	for _, r := range reqs {
		switch r.State() {
		case StatePending:
			pending = append(pending, r)
		case StateAccepted:
			accepted = append(accepted, r)
		case StateRejected:
			rejected = append(rejected, r)
		}
	}
	return pending, accepted, rejected
}
