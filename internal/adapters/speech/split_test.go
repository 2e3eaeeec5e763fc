package speech

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitTextShort(t *testing.T) {
	require.Equal(t, []string{"Hello there."}, SplitText("  Hello there. ", 100))
}

func TestSplitTextEmpty(t *testing.T) {
	require.Empty(t, SplitText(" \n ", 100))
}

func TestSplitTextPrefersSentenceEnd(t *testing.T) {
	text := "First sentence here. Second sentence is longer than the rest."
	parts := SplitText(text, 30)
	require.Equal(t, "First sentence here.", parts[0])
	for _, p := range parts {
		require.LessOrEqual(t, len([]rune(p)), 30)
	}
	require.Equal(t, strings.Join(strings.Fields(text), " "), strings.Join(parts, " "))
}

func TestSplitTextFallsBackToWhitespace(t *testing.T) {
	parts := SplitText("aaaa bbbb cccc dddd", 10)
	require.Equal(t, []string{"aaaa bbbb", "cccc dddd"}, parts)
}

func TestSplitTextHardCut(t *testing.T) {
	parts := SplitText(strings.Repeat("x", 25), 10)
	require.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, parts)
}
