// Package sanitizer turns HTML into plain text for SMS bodies and the text
// part of emails.
package sanitizer

import (
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy *bluemonday.Policy
	initOnce     sync.Once
)

func initPolicies() {
	initOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
}

var (
	// Elements whose closing (or self-closing) tag ends a line of text.
	blockBreak = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|h[1-6]|tr|table|blockquote|pre|ul|ol)>`)
	listItem   = regexp.MustCompile(`(?i)<li[^>]*>`)
	spaceRun   = regexp.MustCompile(`[ \t\f\v]+`)
	blankRun   = regexp.MustCompile(`\n{3,}`)
)

// StripHTML removes every tag and drops the content of script, style and
// similar elements. The result is still HTML-escaped text.
func StripHTML(s string) string {
	initPolicies()
	return strictPolicy.Sanitize(s)
}

// PlainText converts an HTML document to readable text: block elements
// become line breaks, list items get a "- " prefix, entities are decoded
// and runs of whitespace collapse.
func PlainText(s string) string {
	if s == "" {
		return ""
	}

	s = listItem.ReplaceAllString(s, "\n- ")
	s = blockBreak.ReplaceAllString(s, "\n")
	s = html.UnescapeString(StripHTML(s))

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
