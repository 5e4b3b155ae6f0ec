package steps

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarkedReply(t *testing.T) {
	step := Parse("**DO THIS NOW:** Shuffle the deck.\n\n**UP NEXT:** Deal seven cards.")
	require.NotNil(t, step)

	assert.Equal(t, "Shuffle the deck.", step.Detail)
	assert.Equal(t, "Shuffle the deck.", step.Summary)
	assert.Equal(t, "Deal seven cards.", step.UpNext)
	assert.Equal(t, DefaultTitle, step.Title)
	assert.Equal(t, step.Detail, step.SpeakText)
	assert.True(t, step.Marked)
}

func TestParseMarkerVariants(t *testing.T) {
	testCases := []struct {
		name string
		text string
	}{
		{name: "bold with colon inside", text: "**DO THIS NOW:** Cut the deck."},
		{name: "bold with colon outside", text: "**DO THIS NOW**: Cut the deck."},
		{name: "plain", text: "DO THIS NOW: Cut the deck."},
		{name: "lower case", text: "do this now: Cut the deck."},
		{name: "underscores", text: "__Do This Now:__ Cut the deck."},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.True(t, HasMarker(testCase.text))
			step := Parse(testCase.text)
			require.NotNil(t, step)
			assert.Equal(t, "Cut the deck.", step.Detail)
			assert.True(t, step.Marked)
		})
	}
}

func TestParseTakesTitleFromEmphasizedRun(t *testing.T) {
	text := "**Setup – Dealing**\n\n**DO THIS NOW:** Give each player **seven** cards.\nPlace the rest face down.\n\nPress **Next** when you're ready."
	step := Parse(text)
	require.NotNil(t, step)

	assert.Equal(t, "Setup – Dealing", step.Title)
	assert.Equal(t, "Give each player **seven** cards.\nPlace the rest face down.", step.Detail)
	assert.Equal(t, "Give each player seven cards.", step.Summary)
	assert.Empty(t, step.UpNext)
}

func TestParseTakesTitleFromHeading(t *testing.T) {
	step := Parse("## Step 2: Asking\nDO THIS NOW: Ask a player for a rank you hold.")
	require.NotNil(t, step)
	assert.Equal(t, "Step 2: Asking", step.Title)
}

func TestParseFallsBackWithoutMarker(t *testing.T) {
	text := "Great question!\nEach player gets seven cards.\nThe rest form the pond.\nLine four.\nLine five.\nLine six.\nLine seven."
	step := Parse(text)
	require.NotNil(t, step)

	assert.False(t, step.Marked)
	assert.Equal(t, "Great question!", step.Title)
	assert.NotEmpty(t, step.Detail)
	assert.LessOrEqual(t, len(strings.Split(step.Detail, "\n")), 5)
	assert.Equal(t, "Each player gets seven cards.", step.Summary)
}

func TestParseFallbackSingleLineKeepsDetail(t *testing.T) {
	step := Parse("Sure, happy to help.")
	require.NotNil(t, step)
	assert.Equal(t, "Sure, happy to help.", step.Title)
	assert.Equal(t, "Sure, happy to help.", step.Detail)
}

func TestParseReturnsNilOnlyWithoutContent(t *testing.T) {
	assert.Nil(t, Parse(""))
	assert.Nil(t, Parse("  \n\t\n"))
	assert.NotNil(t, Parse("x"))
}

func TestSummarizeTruncatesLongSentences(t *testing.T) {
	detail := strings.Repeat("shuffle ", 30) + "done. Second sentence."
	summary := Summarize(detail)

	assert.LessOrEqual(t, utf8.RuneCountInString(summary), 80)
	assert.True(t, strings.HasSuffix(summary, "…"))
	assert.NotContains(t, summary, "Second sentence")
}

func TestSummarizeStripsEmphasis(t *testing.T) {
	assert.Equal(t, "Lay out four cards.", Summarize("**Lay out** _four_ cards. Then wait."))
}

func TestSpokenFormRewritesLeads(t *testing.T) {
	spoken := SpokenForm("**DO THIS NOW:** Shuffle the deck.\n\n**UP NEXT:** Deal seven cards.\n\nPress **Next** to continue.")

	assert.Equal(t, "Shuffle the deck. Up next: Deal seven cards.", spoken)
}
