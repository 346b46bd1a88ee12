package enums

import "fmt"

// VideoStatus describes the lifecycle state of an uploaded video.
type VideoStatus string

const (
	VideoStatusPending    VideoStatus = "pending"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusCompleted  VideoStatus = "completed"
	VideoStatusFailed     VideoStatus = "failed"
	VideoStatusCancelled  VideoStatus = "cancelled"
)

var validVideoStatuses = []VideoStatus{
	VideoStatusPending,
	VideoStatusProcessing,
	VideoStatusCompleted,
	VideoStatusFailed,
	VideoStatusCancelled,
}

// String returns the literal string for the status.
func (v VideoStatus) String() string {
	return string(v)
}

// IsValid reports whether the status is known.
func (v VideoStatus) IsValid() bool {
	for _, candidate := range validVideoStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the processing lifecycle.
func (v VideoStatus) IsTerminal() bool {
	return v == VideoStatusCompleted || v == VideoStatusFailed || v == VideoStatusCancelled
}

// ParseVideoStatus converts raw input into a VideoStatus.
func ParseVideoStatus(value string) (VideoStatus, error) {
	for _, candidate := range validVideoStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid video status %q", value)
}
