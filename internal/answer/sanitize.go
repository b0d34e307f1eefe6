package answer

import (
	"regexp"
	"strings"
)

var (
	codeFenceRe   = regexp.MustCompile("(?m)^```[a-zA-Z0-9_-]*[ \t]*$\n?")
	headingRe     = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	boldRe        = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRe      = regexp.MustCompile(`\*([^*\n]+)\*`)
	boldUnderRe   = regexp.MustCompile(`__([^_]+)__`)
	italicUnderRe = regexp.MustCompile(`(^|[\s(])_([^_\n]+)_`)
	inlineCodeRe  = regexp.MustCompile("`([^`\n]+)`")
	newlineRunRe  = regexp.MustCompile(`\n{2,}`)
)

// Sanitize strips markdown emphasis, heading and code markers from a model
// response and collapses newline runs to a single newline.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = codeFenceRe.ReplaceAllString(s, "")
	s = headingRe.ReplaceAllString(s, "")
	s = boldRe.ReplaceAllString(s, "$1")
	s = boldUnderRe.ReplaceAllString(s, "$1")
	s = italicRe.ReplaceAllString(s, "$1")
	s = italicUnderRe.ReplaceAllString(s, "$1$2")
	s = inlineCodeRe.ReplaceAllString(s, "$1")
	s = newlineRunRe.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
