package careplan

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a CarePlan.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

const (
	// NoCarePlanGenerated is stored when the generation service answers
	// without any content.
	NoCarePlanGenerated = "No care plan generated."

	failurePrefix = "Failed to generate care plan: "
)

var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CarePlan maps to the care_plan table. Only PatientInfo is client settable.
type CarePlan struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientInfo  string    `db:"patient_info" json:"patient_info"`
	CarePlanText string    `db:"care_plan_text" json:"care_plan_text"`
	Status       Status    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// transition moves the plan to next, refusing backwards or skipped steps.
func (cp *CarePlan) transition(next Status) error {
	if !cp.Status.CanTransition(next) {
		return fmt.Errorf("invalid status transition %s -> %s", cp.Status, next)
	}
	cp.Status = next
	return nil
}

// Complete records generated text and moves the plan to COMPLETED.
func (cp *CarePlan) Complete(text string) error {
	if err := cp.transition(StatusCompleted); err != nil {
		return err
	}
	cp.CarePlanText = text
	return nil
}

// Fail records the failure reason and moves the plan to FAILED.
func (cp *CarePlan) Fail(reason error) error {
	if err := cp.transition(StatusFailed); err != nil {
		return err
	}
	cp.CarePlanText = FailureText(reason)
	return nil
}

// FailureText formats the text stored on a failed care plan.
func FailureText(reason error) string {
	return failurePrefix + reason.Error()
}

// DownloadFilename is the suggested file name for a downloaded care plan.
func (cp *CarePlan) DownloadFilename() string {
	return fmt.Sprintf("careplan_%s.json", cp.ID)
}
