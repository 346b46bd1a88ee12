package enums

import "fmt"

// JobState describes the lifecycle state of a processing job.
type JobState string

const (
	JobStateRunning    JobState = "running"
	JobStateCancelling JobState = "cancelling"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
	JobStateCancelled  JobState = "cancelled"
)

var validJobStates = []JobState{
	JobStateRunning,
	JobStateCancelling,
	JobStateCompleted,
	JobStateFailed,
	JobStateCancelled,
}

// String returns the literal string for the state.
func (j JobState) String() string {
	return string(j)
}

// IsValid reports whether the state is known.
func (j JobState) IsValid() bool {
	for _, candidate := range validJobStates {
		if candidate == j {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the job has finished, one way or another.
func (j JobState) IsTerminal() bool {
	return j == JobStateCompleted || j == JobStateFailed || j == JobStateCancelled
}

// ParseJobState converts raw input into a JobState.
func ParseJobState(value string) (JobState, error) {
	for _, candidate := range validJobStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid job state %q", value)
}
