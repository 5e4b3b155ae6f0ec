package intents

import (
	"regexp"
	"strings"
	"unicode"
)

const maxShortUtteranceWords = 8

var (
	startWalkthroughPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:(?:can|could|will|would) you\s+)?(?:please\s+)?(?:guide|walk|take)\s+(?:us|me)\s+through\s+(?:how\s+to\s+play\s+)?(?:a\s+game\s+of\s+)?(.+)$`),
		regexp.MustCompile(`(?i)^(?:(?:can|could|will|would) you\s+)?(?:please\s+)?(?:teach|show)\s+(?:us|me)\s+(?:how\s+to\s+play\s+)?(.+)$`),
		regexp.MustCompile(`(?i)^(?:let'?s|lets)\s+(?:learn|play)\s+(?:a\s+game\s+of\s+)?(.+)$`),
	}
	navigationPattern = regexp.MustCompile(`(?i)\b(?:go\s+(?:back\s+)?to|jump\s+to|skip\s+to|back\s+to)\s+step\s+\d+\b`)
	houseRulePattern  = regexp.MustCompile(`(?i)\b(?:house\s+rules?|our\s+rules?|in\s+our\s+house|we\s+always|we\s+play\s+(?:that|with|it))\b`)
)

// Heuristic classifies utterances with phrase lists. The lists are plain
// data and may be replaced.
type Heuristic struct {
	Affirmative []string
	Negative    []string
	Advance     []string
	Back        []string
}

func NewHeuristic() *Heuristic {
	return &Heuristic{
		Affirmative: []string{
			"yes", "yeah", "yep", "yup", "sure", "ok", "okay", "confirm",
			"do it", "go ahead", "sounds good", "please do", "absolutely",
			"correct", "that's right", "yes please",
		},
		Negative: []string{
			"no", "nope", "nah", "cancel", "don't", "do not", "never mind",
			"nevermind", "not now", "no thanks", "stop", "forget it",
		},
		Advance: []string{
			"next", "next step", "continue", "ready", "i'm ready", "im ready",
			"we're ready", "were ready", "go on", "keep going", "move on",
			"done", "what's next", "whats next", "what now", "got it", "and then",
		},
		Back: []string{
			"back", "go back", "previous", "previous step", "last step",
			"step back", "repeat that",
		},
	}
}

func (h *Heuristic) Classify(text string) Result {
	trimmed := strings.TrimSpace(strings.TrimRightFunc(text, isTrailingPunct))
	if trimmed == "" {
		return Result{Intent: IntentNone}
	}

	for _, pattern := range startWalkthroughPatterns {
		if match := pattern.FindStringSubmatch(trimmed); match != nil {
			if game := cleanGameName(match[1]); game != "" {
				return Result{Intent: IntentStartWalkthrough, Game: game}
			}
		}
	}

	if navigationPattern.MatchString(trimmed) {
		return Result{Intent: IntentNavigation}
	}

	words := normalizedWords(trimmed)
	normalized := strings.Join(words, " ")
	if len(words) <= maxShortUtteranceWords {
		switch {
		case containsPhrase(normalized, h.Negative):
			return Result{Intent: IntentDeny}
		case containsPhrase(normalized, h.Back):
			return Result{Intent: IntentPreviousStep}
		case containsPhrase(normalized, h.Advance):
			return Result{Intent: IntentNextStep}
		case containsPhrase(normalized, h.Affirmative):
			return Result{Intent: IntentAffirm}
		}
	}

	if houseRulePattern.MatchString(trimmed) {
		return Result{Intent: IntentHouseRule}
	}
	return Result{Intent: IntentNone}
}

// containsPhrase matches whole words only.
func containsPhrase(normalized string, phrases []string) bool {
	padded := " " + normalized + " "
	for _, phrase := range phrases {
		if strings.Contains(padded, " "+phrase+" ") {
			return true
		}
	}
	return false
}

func normalizedWords(text string) []string {
	text = strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func cleanGameName(name string) string {
	name = strings.TrimSpace(strings.TrimRightFunc(name, isTrailingPunct))
	for _, suffix := range []string{" please", " for us", " for me", " with us"} {
		if len(name) > len(suffix) && strings.EqualFold(name[len(name)-len(suffix):], suffix) {
			name = name[:len(name)-len(suffix)]
		}
	}
	return strings.TrimSpace(strings.TrimRightFunc(name, isTrailingPunct))
}

func isTrailingPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r)
}
