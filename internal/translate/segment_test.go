package translate

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentShortTextIsSingleSegment(t *testing.T) {
	for _, text := range []string{"", "Hello.", "One. Two! Three?"} {
		got := Segment(text, 100)
		require.Len(t, got, 1)
		assert.Equal(t, text, got[0])
	}
}

func TestSegmentIsLossless(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps. Does it? Yes!  It does.\n", 40)
	for _, budget := range []int{20, 57, 100, 333} {
		segs := Segment(text, budget)
		assert.Equal(t, text, strings.Join(segs, ""), "budget %d", budget)
	}
}

func TestSegmentRespectsBudgetAndSentenceBoundaries(t *testing.T) {
	text := "Alpha beta. Gamma delta epsilon! Zeta? Eta theta iota kappa. Lambda."
	segs := Segment(text, 25)
	for _, s := range segs {
		assert.LessOrEqual(t, utf8.RuneCountInString(s), 25, s)
		trimmed := strings.TrimSpace(s)
		last := trimmed[len(trimmed)-1]
		assert.Contains(t, ".!?", string(last), "segment %q must end on a sentence", s)
	}
	assert.Equal(t, []string{"Alpha beta. ", "Gamma delta epsilon! ", "Zeta? ", "Eta theta iota kappa. ", "Lambda."}, segs)
}

func TestSegmentPacksGreedily(t *testing.T) {
	segs := Segment("A a. B b. C c. D d.", 10)
	assert.Equal(t, []string{"A a. B b. ", "C c. D d."}, segs)
}

func TestSegmentKeepsOversizedSentenceWhole(t *testing.T) {
	long := strings.Repeat("word ", 20) + "end."
	text := "Short one. " + long + " Tail."
	segs := Segment(text, 30)
	require.Len(t, segs, 3)
	assert.Equal(t, "Short one. ", segs[0])
	assert.Equal(t, long+" ", segs[1])
	assert.Equal(t, "Tail.", segs[2])
}

func TestSegmentIgnoresTerminatorWithoutWhitespace(t *testing.T) {
	text := "Version 1.2.3 is out. Download at example.com now."
	segs := Segment(text, 30)
	assert.Equal(t, []string{"Version 1.2.3 is out. ", "Download at example.com now."}, segs)
}

func TestSegmentMultibyteBudget(t *testing.T) {
	text := "Привет мир. Как дела? Хорошо."
	segs := Segment(text, 12)
	assert.Equal(t, text, strings.Join(segs, ""))
	for _, s := range segs {
		assert.LessOrEqual(t, utf8.RuneCountInString(s), 12)
	}
}
