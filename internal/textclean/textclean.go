// Package textclean renders model output as plain text for a chat bubble.
// It strips the handful of markdown-style markers the providers emit; it is
// deliberately not a markdown parser, and nested structures or code fences
// with embedded pipes may be cleaned imperfectly.
package textclean

import (
	"regexp"
	"strings"
)

// A Transform is one named step of the cleaning pipeline.
type Transform struct {
	Name  string
	Apply func(string) string
}

var (
	boldPattern       = regexp.MustCompile(`\*\*([^*\n]*)\*\*|__([^_\n]*)__`)
	italicPattern     = regexp.MustCompile(`\*([^*\n]*)\*|_([^_\n]*)_`)
	headingPattern    = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	fencePattern      = regexp.MustCompile("```[a-zA-Z0-9]*")
	inlineCodePattern = regexp.MustCompile("`([^`]*)`")
	bulletPattern     = regexp.MustCompile(`(?m)^(\s*)[-*+]\s+`)
	orderedPattern    = regexp.MustCompile(`(?m)^(\s*)\d+\.\s+`)
)

// Pipeline is the ordered list of transforms applied by Clean. Order
// matters: emphasis is removed before bullets so "* item" lines are still
// recognizable as list markers, and fences are removed before inline code.
var Pipeline = []Transform{
	{"emphasis", stripEmphasis},
	{"headings", stripHeadings},
	{"table_pipes", stripTablePipes},
	{"code", stripCode},
	{"bullets", rewriteBullets},
	{"ordered_lists", stripOrderedMarkers},
	{"trim", strings.TrimSpace},
}

// Clean applies the full pipeline in order.
func Clean(s string) string {
	for _, t := range Pipeline {
		s = t.Apply(s)
	}
	return s
}

func stripEmphasis(s string) string {
	s = boldPattern.ReplaceAllString(s, "$1$2")
	s = italicPattern.ReplaceAllString(s, "$1$2")
	return s
}

func stripHeadings(s string) string {
	return headingPattern.ReplaceAllString(s, "")
}

func stripTablePipes(s string) string {
	return strings.ReplaceAll(s, "|", "")
}

func stripCode(s string) string {
	s = fencePattern.ReplaceAllString(s, "")
	s = inlineCodePattern.ReplaceAllString(s, "$1")
	return strings.ReplaceAll(s, "`", "")
}

func rewriteBullets(s string) string {
	return bulletPattern.ReplaceAllString(s, "$1• ")
}

func stripOrderedMarkers(s string) string {
	return orderedPattern.ReplaceAllString(s, "$1")
}
