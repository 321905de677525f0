package composite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCuesOnePerNonEmptyLine(t *testing.T) {
	cues := BuildCues("Bonjour.\n\n  Ça va ?  \nAu revoir.\n", 2)
	require.Len(t, cues, 3)
	for i, cue := range cues {
		assert.Equal(t, float64(2*i), cue.Start)
		assert.Equal(t, float64(2*(i+1)), cue.End)
		if i > 0 {
			assert.Equal(t, cues[i-1].End, cue.Start, "cues are contiguous and non-overlapping")
		}
	}
	assert.Equal(t, "Ça va ?", cues[1].Text)
}

func TestBuildCuesDefaultsAndEmpty(t *testing.T) {
	assert.Empty(t, BuildCues("  \n\n", 2))
	cues := BuildCues("one", 0)
	require.Len(t, cues, 1)
	assert.Equal(t, DefaultCueSeconds, cues[0].End)
}
