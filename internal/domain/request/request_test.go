package request

import (
	"testing"
	"time"

	"github.com/medipal/medtrack/internal/domain/medication"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStateDerivation(t *testing.T) {
	tests := []struct {
		name      string
		responded bool
		approved  bool
		want      State
	}{
		{"unresponded", false, false, StatePending},
		{"unresponded approved flag ignored", false, true, StatePending},
		{"accepted", true, true, StateAccepted},
		{"rejected", true, false, StateRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Request{Responded: tt.responded, Approved: tt.approved}
			if got := r.State(); got != tt.want {
				t.Errorf("State() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRespondIsSingleShot(t *testing.T) {
	r := &Request{}
	now := date(2024, 3, 1)

	if err := r.Respond(true, now); err != nil {
		t.Fatalf("first response: %v", err)
	}
	if r.State() != StateAccepted {
		t.Fatalf("state after accept = %s", r.State())
	}
	if r.RespondedAt == nil || !r.RespondedAt.Equal(now) {
		t.Errorf("RespondedAt not recorded")
	}

	// A second response must not flip a terminal state.
	if err := r.Respond(false, now.Add(time.Hour)); err != ErrAlreadyResponded {
		t.Fatalf("second response error = %v, want ErrAlreadyResponded", err)
	}
	if r.State() != StateAccepted {
		t.Errorf("state mutated by losing response: %s", r.State())
	}
}

func TestRespondRejectIsTerminal(t *testing.T) {
	r := &Request{}
	if err := r.Respond(false, date(2024, 3, 1)); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := r.Respond(true, date(2024, 3, 2)); err != ErrAlreadyResponded {
		t.Fatalf("accept after reject error = %v, want ErrAlreadyResponded", err)
	}
	if r.State() != StateRejected {
		t.Errorf("state = %s, want rejected", r.State())
	}
}

func TestValidate(t *testing.T) {
	target := int64(7)
	valid := Request{
		Type:        TypeEdit,
		Timing:      medication.TimingMorning,
		TargetMedID: &target,
	}

	tests := []struct {
		name    string
		mutate  func(r *Request)
		wantErr bool
	}{
		{"valid edit", func(r *Request) {}, false},
		{"valid add without target", func(r *Request) { r.Type = TypeAdd; r.TargetMedID = nil }, false},
		{"bad type", func(r *Request) { r.Type = "remove" }, true},
		{"bad timing", func(r *Request) { r.Timing = "Noon" }, true},
		{"edit without target", func(r *Request) { r.TargetMedID = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDiffReportsOnlyChangedFields(t *testing.T) {
	end := date(2024, 6, 30)
	current := &medication.Medication{
		Dose:         "5mg",
		Instructions: "with food",
		StartDate:    date(2024, 1, 1),
		EndDate:      &end,
		PrescribedBy: "Dr. Chen",
		Timing:       medication.TimingMorning,
	}

	r := &Request{
		Type:          TypeEdit,
		Dose:          "10mg",
		Instructions:  "with food",
		StartDate:     date(2024, 1, 1),
		EndDate:       &end,
		ClinicianName: "Dr. Chen",
		Timing:        medication.TimingMorning,
	}

	diff := r.Diff(current)
	if len(diff) != 1 {
		t.Fatalf("diff has %d entries, want 1: %v", len(diff), diff)
	}
	change, ok := diff["dose"]
	if !ok {
		t.Fatal("dose change missing from diff")
	}
	if change.Old != "5mg" || change.New != "10mg" {
		t.Errorf("dose change = %+v", change)
	}
}

func TestDiffNilEndDate(t *testing.T) {
	end := date(2024, 6, 30)
	current := &medication.Medication{
		Dose:      "5mg",
		StartDate: date(2024, 1, 1),
		EndDate:   &end,
		Timing:    medication.TimingMorning,
	}
	r := &Request{
		Type:      TypeEdit,
		Dose:      "5mg",
		StartDate: date(2024, 1, 1),
		EndDate:   nil,
		Timing:    medication.TimingMorning,
	}

	diff := r.Diff(current)
	change, ok := diff["end_date"]
	if !ok {
		t.Fatalf("end_date change missing: %v", diff)
	}
	if change.Old != "2024-06-30" || change.New != "" {
		t.Errorf("end_date change = %+v", change)
	}
}

func TestDiffEdgeCases(t *testing.T) {
	r := &Request{Type: TypeAdd, Dose: "10mg"}
	if diff := r.Diff(&medication.Medication{Dose: "5mg"}); len(diff) != 0 {
		t.Errorf("add request produced diff: %v", diff)
	}

	edit := &Request{Type: TypeEdit, Dose: "10mg"}
	if diff := edit.Diff(nil); len(diff) != 0 {
		t.Errorf("missing target produced diff: %v", diff)
	}
}

func TestPartition(t *testing.T) {
	reqs := []*Request{
		{ID: 1},
		{ID: 2, Responded: true, Approved: true},
		{ID: 3, Responded: true},
		{ID: 4},
	}

	pending, accepted, rejected := Partition(reqs)

	if len(pending) != 2 || pending[0].ID != 1 || pending[1].ID != 4 {
		t.Errorf("pending = %v", ids(pending))
	}
	if len(accepted) != 1 || accepted[0].ID != 2 {
		t.Errorf("accepted = %v", ids(accepted))
	}
	if len(rejected) != 1 || rejected[0].ID != 3 {
		t.Errorf("rejected = %v", ids(rejected))
	}
}

func ids(reqs []*Request) []int64 {
	out := make([]int64, len(reqs))
	for i, r := range reqs {
		out[i] = r.ID
	}
	return out
}
