// Package segment splits markdown documents into ordered segments and
// splices generated replacements back together.
//
// Information Hiding:
// - Heading detection regex per level hidden
// - Trailing-newline bookkeeping computed once at split time

package segment

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Mode selects how a document is split.
type Mode string

const (
	// ModeNone yields the whole document as one segment.
	ModeNone Mode = "none"
	// ModeParagraph splits on blank lines ("\n\n").
	ModeParagraph Mode = "paragraph"
	// ModeHeadline splits before every heading of depth <= level.
	ModeHeadline Mode = "headline"
)

// DefaultHeadlineLevel is used when neither template nor caller sets a level.
const DefaultHeadlineLevel = 2

// ParagraphSeparator joins paragraph segments.
const ParagraphSeparator = "\n\n"

// ParseMode parses a split mode name. The empty string is ModeNone.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeNone:
		return ModeNone, nil
	case ModeParagraph:
		return ModeParagraph, nil
	case ModeHeadline:
		return ModeHeadline, nil
	default:
		return "", fmt.Errorf("unknown split mode: %q", s)
	}
}

// Segment is one ordered chunk of a document.
type Segment struct {
	Index   int
	Content string
	// Trailing is the run of newlines Content ends with.
	Trailing string
}

func newSegment(index int, content string) Segment {
	body := strings.TrimRight(content, "\n")
	return Segment{Index: index, Content: content, Trailing: content[len(body):]}
}

// Splice replaces the segment with generated text, keeping the original
// number of trailing newlines.
func (s Segment) Splice(generated string) string {
	return strings.TrimRight(generated, "\n") + s.Trailing
}

// Split segments text according to mode. level is only used by ModeHeadline;
// level <= 0 disables splitting.
func Split(text string, mode Mode, level int) ([]Segment, error) {
	var parts []string
	switch mode {
	case ModeNone, "":
		parts = []string{text}
	case ModeParagraph:
		parts = ByParagraph(text)
	case ModeHeadline:
		parts = ByHeadline(text, level)
	default:
		return nil, fmt.Errorf("unknown split mode: %q", mode)
	}

	segs := make([]Segment, len(parts))
	for i, p := range parts {
		segs[i] = newSegment(i, p)
	}
	return segs, nil
}

// ByParagraph splits on the literal "\n\n" separator.
func ByParagraph(text string) []string {
	return strings.Split(text, ParagraphSeparator)
}

var (
	headingMu sync.Mutex
	headingRe = map[int]*regexp.Regexp{}
)

func headingRegexp(level int) *regexp.Regexp {
	headingMu.Lock()
	defer headingMu.Unlock()
	re, ok := headingRe[level]
	if !ok {
		re = regexp.MustCompile(fmt.Sprintf(`(?m)^#{1,%d}\s.*$`, level))
		headingRe[level] = re
	}
	return re
}

// ByHeadline splits before every heading line of depth <= level. Each
// heading owns everything up to the next qualifying heading. Text before
// the first heading becomes its own segment unless it is blank.
func ByHeadline(text string, level int) []string {
	if level <= 0 {
		return []string{text}
	}

	matches := headingRegexp(level).FindAllStringIndex(text, -1)
	var parts []string
	start := len(text)
	if len(matches) > 0 {
		start = matches[0][0]
	}
	if pre := text[:start]; strings.TrimSpace(pre) != "" {
		parts = append(parts, pre)
	}
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		parts = append(parts, text[m[0]:end])
	}
	return parts
}

// Reassemble splices outputs into segs and joins them the way mode
// separated them. outputs must be index-aligned with segs. A blank
// preamble that ByHeadline dropped is not restored; callers that need
// it prepend text[:len(text)-total content length] themselves.
func Reassemble(mode Mode, segs []Segment, outputs []string) (string, error) {
	if len(segs) != len(outputs) {
		return "", fmt.Errorf("reassemble: %d segments but %d outputs", len(segs), len(outputs))
	}
	sep := ""
	if mode == ModeParagraph {
		sep = ParagraphSeparator
	}
	var b strings.Builder
	for i, s := range segs {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(s.Splice(outputs[i]))
	}
	return b.String(), nil
}
