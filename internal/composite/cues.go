package composite

import "strings"

// DefaultCueSeconds is the display window assigned to each subtitle line.
const DefaultCueSeconds = 2.0

// Cue is one timed subtitle window. End is exclusive.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// BuildCues assigns each non-empty line of text a consecutive window of
// seconds, in line order.
func BuildCues(text string, seconds float64) []Cue {
	if seconds <= 0 {
		seconds = DefaultCueSeconds
	}
	var cues []Cue
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		i := float64(len(cues))
		cues = append(cues, Cue{Start: i * seconds, End: (i + 1) * seconds, Text: line})
	}
	return cues
}
