package types

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// timestampRe matches the [mm:ss] markers used to cite video moments.
var timestampRe = regexp.MustCompile(`\[(\d{1,3}):([0-5]\d)\]`)

// FormatTimestamp renders a second offset as the bracketed [mm:ss] marker
// used everywhere a moment in a video is referenced.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("[%02d:%02d]", total/60, total%60)
}

// ExtractTimestamps returns the second offsets of every [mm:ss] marker in
// the text, in order of appearance, duplicates included.
func ExtractTimestamps(text string) []float64 {
	matches := timestampRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		minutes, _ := strconv.Atoi(m[1])
		secs, _ := strconv.Atoi(m[2])
		out = append(out, float64(minutes*60+secs))
	}
	return out
}
