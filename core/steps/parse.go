package steps

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/muesli/reflow/truncate"
)

const emphasis = `[*_]{0,3}`

var (
	doThisNowPattern = regexp.MustCompile(`(?i)` + emphasis + `[ \t]*do\s+this\s+now[ \t]*` + emphasis + `[ \t]*:[ \t]*` + emphasis)
	upNextPattern    = regexp.MustCompile(`(?i)` + emphasis + `[ \t]*up\s+next[ \t]*` + emphasis + `[ \t]*:[ \t]*` + emphasis)
	footerPattern    = regexp.MustCompile(`(?im)^[ \t>*_]*(?:press|tap|click|hit|say)[ \t]+[*_"'“]*next\b.*$`)

	emphasizedRunPattern = regexp.MustCompile(`(?:\*\*|__)([^*_\n]+?)(?:\*\*|__)`)
	headingPattern       = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)[ \t#]*$`)
	firstSentencePattern = regexp.MustCompile(`^(.*?[.!?])(?:\s|$)`)
	blankLinePattern     = regexp.MustCompile(`\n[ \t]*\n`)
	whitespacePattern    = regexp.MustCompile(`\s+`)
	markupReplacer       = strings.NewReplacer("**", "", "__", "", "`", "", "*", "", "_", "", "#", "")
)

// HasMarker reports whether text carries the "DO THIS NOW:" lead.
func HasMarker(text string) bool {
	return doThisNowPattern.MatchString(text)
}

// Parse extracts a step from text. It returns nil only when text has no
// content at all.
func Parse(text string) *Step {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if loc := doThisNowPattern.FindStringIndex(text); loc != nil {
		return parseMarked(text, loc)
	}
	return parseFallback(text)
}

func parseMarked(text string, marker []int) *Step {
	rest := text[marker[1]:]
	detail, upNext := rest, ""
	if loc := upNextPattern.FindStringIndex(rest); loc != nil {
		detail = rest[:loc[0]]
		upNext = firstParagraph(rest[loc[1]:])
	}
	detail = cleanDetail(detail)

	title := findTitle(text[:marker[0]])
	if title == "" {
		title = findTitle(text[marker[1]:])
	}
	if title == "" {
		title = DefaultTitle
	}

	return &Step{
		Title:     title,
		Summary:   Summarize(detail),
		Detail:    detail,
		SpeakText: detail,
		UpNext:    upNext,
		Marked:    true,
	}
}

func parseFallback(text string) *Step {
	upNext := ""
	if loc := upNextPattern.FindStringIndex(text); loc != nil {
		upNext = firstParagraph(text[loc[1]:])
		text = text[:loc[0]]
	}

	lines := contentLines(footerPattern.ReplaceAllString(text, ""))
	if len(lines) == 0 {
		if upNext == "" {
			return nil
		}
		lines = []string{upNext}
	}

	title := stripMarkup(lines[0])
	if title == "" {
		title = DefaultTitle
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		title = truncate.StringWithTail(title, maxTitleLength, summaryEllipsis)
	}

	detailLines := lines[1:]
	if len(detailLines) == 0 {
		detailLines = lines
	}
	if len(detailLines) > maxFallbackLines {
		detailLines = detailLines[:maxFallbackLines]
	}
	detail := strings.Join(detailLines, "\n")

	return &Step{
		Title:     title,
		Summary:   Summarize(detail),
		Detail:    detail,
		SpeakText: detail,
		UpNext:    upNext,
	}
}

// Summarize returns the first sentence of detail without markup, cut to at
// most 80 characters.
func Summarize(detail string) string {
	flat := strings.TrimSpace(whitespacePattern.ReplaceAllString(stripMarkup(detail), " "))
	if flat == "" {
		return ""
	}

	summary := flat
	if match := firstSentencePattern.FindStringSubmatch(flat); match != nil {
		summary = match[1]
	}
	if utf8.RuneCountInString(summary) > maxSummaryWidth {
		summary = truncate.StringWithTail(summary, maxSummaryWidth, summaryEllipsis)
	}
	return summary
}

// RewriteMarkers replaces the step leads in text with the given spoken
// leads and drops "press Next" footers.
func RewriteMarkers(text, actionLead, upNextLead string) string {
	text = footerPattern.ReplaceAllString(text, "")
	text = doThisNowPattern.ReplaceAllString(text, actionLead)
	return upNextPattern.ReplaceAllString(text, upNextLead)
}

// SpokenForm turns a step reply into plain text fit for speech synthesis.
func SpokenForm(text string) string {
	text = RewriteMarkers(text, actionSpokenLead, upNextSpokenLead)
	text = headingPattern.ReplaceAllString(text, "$1.")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(stripMarkup(text), " "))
}

func findTitle(text string) string {
	for _, match := range headingPattern.FindAllStringSubmatch(text, -1) {
		if title := normalizeTitle(match[1]); title != "" {
			return title
		}
	}
	for _, match := range emphasizedRunPattern.FindAllStringSubmatch(text, -1) {
		if title := normalizeTitle(match[1]); title != "" {
			return title
		}
	}
	return ""
}

func normalizeTitle(candidate string) string {
	title := strings.TrimSpace(stripMarkup(candidate))
	title = strings.TrimSpace(strings.TrimSuffix(title, ":"))
	length := utf8.RuneCountInString(title)
	if length < minTitleLength || length > maxTitleLength {
		return ""
	}
	if doThisNowPattern.MatchString(title+":") || upNextPattern.MatchString(title+":") {
		return ""
	}
	if !hasUpper(title) && !strings.ContainsAny(title, "-–—") {
		return ""
	}
	return title
}

func cleanDetail(detail string) string {
	detail = footerPattern.ReplaceAllString(detail, "")
	return strings.Join(contentLines(detail), "\n")
}

func firstParagraph(text string) string {
	text = footerPattern.ReplaceAllString(text, "")
	text = strings.TrimLeft(text, " \t\n")
	if loc := blankLinePattern.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	return strings.Join(contentLines(text), " ")
}

func contentLines(text string) []string {
	var lines []string
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.Trim(line, "*_#-– ") == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func stripMarkup(text string) string {
	return strings.TrimSpace(markupReplacer.Replace(text))
}

func hasUpper(text string) bool {
	for _, r := range text {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}
