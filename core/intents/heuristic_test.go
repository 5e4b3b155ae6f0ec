package intents

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		text     string
		expected Result
	}{
		{text: "guide us through Go Fish", expected: Result{Intent: IntentStartWalkthrough, Game: "Go Fish"}},
		{text: "Can you walk me through Ticket to Ride, please?", expected: Result{Intent: IntentStartWalkthrough, Game: "Ticket to Ride"}},
		{text: "teach us how to play Crazy Eights", expected: Result{Intent: IntentStartWalkthrough, Game: "Crazy Eights"}},
		{text: "let's play a game of Hearts!", expected: Result{Intent: IntentStartWalkthrough, Game: "Hearts"}},
		{text: "go back to step 3", expected: Result{Intent: IntentNavigation}},
		{text: "Next!", expected: Result{Intent: IntentNextStep}},
		{text: "ok, we're ready", expected: Result{Intent: IntentNextStep}},
		{text: "What's next?", expected: Result{Intent: IntentNextStep}},
		{text: "go back", expected: Result{Intent: IntentPreviousStep}},
		{text: "Yes please", expected: Result{Intent: IntentAffirm}},
		{text: "sure, go ahead", expected: Result{Intent: IntentAffirm}},
		{text: "no, don't do that", expected: Result{Intent: IntentDeny}},
		{text: "Never mind.", expected: Result{Intent: IntentDeny}},
		{text: "In our house we always draw two extra cards after a skip", expected: Result{Intent: IntentHouseRule}},
		{text: "what's the weather like?", expected: Result{Intent: IntentNone}},
		{text: "nextdoor neighbours are loud", expected: Result{Intent: IntentNone}},
		{text: "   ", expected: Result{Intent: IntentNone}},
	}

	heuristic := NewHeuristic()
	for _, testCase := range testCases {
		t.Run(testCase.text, func(t *testing.T) {
			assert.Equal(t, testCase.expected, heuristic.Classify(testCase.text))
		})
	}
}

func TestLongUtterancesAreNotConfirmations(t *testing.T) {
	result := NewHeuristic().Classify("yes but what happens if nobody has the card I asked for in this round")
	assert.Equal(t, IntentNone, result.Intent)
}

func TestPhraseListsAreData(t *testing.T) {
	heuristic := NewHeuristic()
	heuristic.Affirmative = append(heuristic.Affirmative, "aye")

	assert.Equal(t, IntentAffirm, heuristic.Classify("aye").Intent)
	assert.Equal(t, IntentNone, NewHeuristic().Classify("aye").Intent)
}

func TestResultPredicates(t *testing.T) {
	assert.True(t, Result{Intent: IntentNextStep}.IsStepAdvancing())
	assert.True(t, Result{Intent: IntentNavigation}.IsStepAdvancing())
	assert.False(t, Result{Intent: IntentHouseRule}.IsStepAdvancing())
	assert.True(t, Result{Intent: IntentDeny}.IsConfirmation())
	assert.False(t, Result{Intent: IntentNextStep}.IsConfirmation())
}
