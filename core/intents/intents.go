// Package intents guesses what a short player utterance asks for.
package intents

type Intent string

const (
	IntentNone             Intent = "none"
	IntentAffirm           Intent = "affirm"
	IntentDeny             Intent = "deny"
	IntentNextStep         Intent = "next_step"
	IntentPreviousStep     Intent = "previous_step"
	IntentStartWalkthrough Intent = "start_walkthrough"
	IntentNavigation       Intent = "navigation"
	IntentHouseRule        Intent = "house_rule"
)

type Result struct {
	Intent Intent
	// Game is set for IntentStartWalkthrough.
	Game string
}

// IsStepAdvancing reports whether the utterance moves a walkthrough forward.
func (r Result) IsStepAdvancing() bool {
	switch r.Intent {
	case IntentNextStep, IntentStartWalkthrough, IntentNavigation:
		return true
	}
	return false
}

// IsConfirmation reports whether the utterance answers a yes/no prompt.
func (r Result) IsConfirmation() bool {
	return r.Intent == IntentAffirm || r.Intent == IntentDeny
}

type Classifier interface {
	Classify(text string) Result
}
