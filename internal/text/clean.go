package text

import (
	"regexp"
	"strings"
)

var (
	editLinkRe   = regexp.MustCompile(`(?mi)^\[edit[^\]]*\]\([^\)]+\)\s*$`)
	tocRe        = regexp.MustCompile(`(?mi)^#{1,3}\s+(?:table of )?contents?\s*\n(?:\s*[-*]\s*\[.*?\]\(#.*?\)\s*\n)*`)
	skipLinkRe   = regexp.MustCompile(`(?mi)^\s*\[skip to (?:main )?content\]\([^\)]*\)\s*$`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// CleanPage strips page furniture that survives HTML extraction ("Edit this page"
// links, in-page tables of contents, skip links) and collapses runs of blank lines.
func CleanPage(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = editLinkRe.ReplaceAllString(text, "")
	text = tocRe.ReplaceAllString(text, "")
	text = skipLinkRe.ReplaceAllString(text, "")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
