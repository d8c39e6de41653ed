// Package normalize turns free-text athlete names into matching keys.
//
// Every function here is pure and deterministic. Name produces two forms: a
// display form for storage and presentation, and a normalized form used only
// for matching. Normalizing a normalized name returns it unchanged.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrEmptyName matches any *EmptyNameError via errors.Is.
var ErrEmptyName = errors.New("empty name")

// EmptyNameError reports a name with no meaningful tokens left after cleanup.
type EmptyNameError struct {
	Raw string
}

func (e *EmptyNameError) Error() string {
	return fmt.Sprintf("name %q has no meaningful tokens", e.Raw)
}

func (e *EmptyNameError) Is(target error) bool {
	return target == ErrEmptyName
}

// Result holds both forms of a normalized name.
type Result struct {
	Normalized string
	Display    string
}

var (
	trailingInitials = regexp.MustCompile(`^(.*\S)\s+([A-Z]{2,3})$`)
	underscoreTag    = regexp.MustCompile(`_[A-Z0-9]+$`)
	bracketed        = regexp.MustCompile(`\s*[\(\[][^\)\]]*[\)\]]`)
	disambiguator    = regexp.MustCompile(`^(.*\S)[\s_]+([A-Z]{1,3}[0-9]*)$`)

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}[-/.]\d{1,2}[-/.]\d{1,2}\b`),
		regexp.MustCompile(`\b\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}\b`),
		regexp.MustCompile(`\b(?:19|20)\d{2}(?:0[1-9]|1[0-2])(?:0[1-9]|[12]\d|3[01])\b`),
	}
)

// maxCleanPasses bounds the strip loop; each pass removes at least one token.
const maxCleanPasses = 8

// Name normalizes a raw name. It fails with *EmptyNameError when nothing
// meaningful remains.
func Name(raw string) (Result, error) {
	display := Clean(raw)
	normalized := Fold(display)
	if !hasLetter(normalized) {
		return Result{}, &EmptyNameError{Raw: raw}
	}
	return Result{Normalized: normalized, Display: display}, nil
}

// Clean produces the display form: embedded dates, bracketed groups,
// underscore tags and trailing source initials removed, whitespace collapsed.
// Case and punctuation are kept.
func Clean(raw string) string {
	s := collapse(raw)
	for range maxCleanPasses {
		before := s
		s = bracketed.ReplaceAllString(s, " ")
		for _, re := range datePatterns {
			s = re.ReplaceAllString(s, " ")
		}
		s = collapse(s)
		s = underscoreTag.ReplaceAllString(s, "")
		if base, _, ok := splitInitials(s); ok {
			s = base
		}
		s = collapse(strings.Trim(s, " -_,;:"))
		if s == before {
			break
		}
	}
	return s
}

// Fold derives the matching key from a display name: diacritics stripped,
// case folded, apostrophes dropped, remaining punctuation treated as spaces.
func Fold(display string) string {
	// Transformers and casers carry state; build them per call.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(stripMarks, display)
	if err != nil {
		s = display
	}
	s = cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\'' || r == '’' || r == '`' || r == 'ʼ':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return collapse(b.String())
}

// SplitDisambiguator detects a disambiguating suffix on a display name: a
// trailing token of 1-3 uppercase letters with optional digits ("John Smith JS2").
// It returns the base form without the suffix. As with initials, all-caps
// names are never split.
func SplitDisambiguator(display string) (base, suffix string, ok bool) {
	m := disambiguator.FindStringSubmatch(strings.TrimSpace(display))
	if m == nil || !hasLower(m[1]) {
		return display, "", false
	}
	return m[1], m[2], true
}

// splitInitials separates a trailing initials token. All-caps names
// ("JOHN LEE") are left alone: the base must contain a lowercase letter.
func splitInitials(s string) (base, initials string, ok bool) {
	m := trailingInitials.FindStringSubmatch(s)
	if m == nil || !hasLower(m[1]) {
		return s, "", false
	}
	return m[1], m[2], true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func hasLower(s string) bool {
	for _, r := range s {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}
