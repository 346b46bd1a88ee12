package types

import "testing"

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "[00:00]"},
		{5.9, "[00:05]"},
		{65, "[01:05]"},
		{90, "[01:30]"},
		{3599, "[59:59]"},
		{3600, "[60:00]"},
		{-3, "[00:00]"},
	}
	for _, tc := range cases {
		if got := FormatTimestamp(tc.seconds); got != tc.want {
			t.Errorf("FormatTimestamp(%v) = %s, want %s", tc.seconds, got, tc.want)
		}
	}
}

func TestExtractTimestamps(t *testing.T) {
	text := "The fire starts at [01:30] and spreads by [02:15]. See [01:30] again."
	got := ExtractTimestamps(text)
	want := []float64{90, 135, 90}
	if len(got) != len(want) {
		t.Fatalf("expected %d markers, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("marker %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestExtractTimestampsIgnoresMalformed(t *testing.T) {
	if got := ExtractTimestamps("at [1:75] or [xx:10] nothing matches"); got != nil {
		t.Fatalf("expected no markers, got %v", got)
	}
}
