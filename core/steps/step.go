// Package steps extracts walkthrough steps from free-form assistant text.
//
// Assistant replies mark the action the players should take right now with a
// "DO THIS NOW:" lead and may preview what follows with "UP NEXT:". Both leads
// tolerate markdown emphasis around them. Replies without the lead still
// produce a step so a malformed reply never strands a walkthrough.
package steps

const (
	DefaultTitle = "Current Step"

	maxSummaryWidth  = 80
	maxFallbackLines = 5
	minTitleLength   = 3
	maxTitleLength   = 40
	summaryEllipsis  = "…"
	upNextSpokenLead = "Up next: "
	actionSpokenLead = ""
)

type Step struct {
	Title   string
	Summary string
	Detail  string
	// SpeakText is what a speech channel should read aloud for this step.
	SpeakText string
	UpNext    string
	// Marked reports whether the reply carried the "DO THIS NOW:" lead.
	Marked bool
}
