package enums

import "fmt"

// Modality tags the source of an evidence record: a described frame or a
// transcript segment.
type Modality string

const (
	ModalityVisual Modality = "visual"
	ModalityAudio  Modality = "audio"
)

var validModalities = []Modality{
	ModalityVisual,
	ModalityAudio,
}

// String returns the literal string for the modality.
func (m Modality) String() string {
	return string(m)
}

// IsValid reports whether the modality is known.
func (m Modality) IsValid() bool {
	for _, candidate := range validModalities {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseModality converts raw input into a Modality.
func ParseModality(value string) (Modality, error) {
	for _, candidate := range validModalities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid modality %q", value)
}
