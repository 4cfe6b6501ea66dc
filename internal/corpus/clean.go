package corpus

import (
	"regexp"
	"strings"
)

var (
	whitespaceRE   = regexp.MustCompile(`\s+`)
	specialCharsRE = regexp.MustCompile(`[^\w\s.,!?;:\-()]`)
	multiPeriodRE  = regexp.MustCompile(`\.{2,}`)
	spacePeriodRE  = regexp.MustCompile(`\s+\.`)
	urlRE          = regexp.MustCompile(`https?://\S+`)
	emailRE        = regexp.MustCompile(`\S+@\S+\.\S+`)
	phoneRE        = regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`)
)

// CleanText normalizes scraped page content before chunking: collapses
// whitespace, strips noise characters, and removes inline URLs, emails and
// phone numbers, which are carried in metadata instead.
func CleanText(text string) string {
	if text == "" {
		return ""
	}

	text = whitespaceRE.ReplaceAllString(text, " ")
	text = specialCharsRE.ReplaceAllString(text, " ")
	text = multiPeriodRE.ReplaceAllString(text, ".")
	text = spacePeriodRE.ReplaceAllString(text, ".")
	text = urlRE.ReplaceAllString(text, "")
	text = emailRE.ReplaceAllString(text, "")
	text = phoneRE.ReplaceAllString(text, "")
	text = whitespaceRE.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}
