package engine

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/cedarridge/idm-trainer/internal/content"
)

// Match modes for freetext steps.
const (
	MatchExact    = "exact"
	MatchIncludes = "includes"
	MatchRegex    = "regex"
	MatchOneOf    = "oneOf"
)

// Matches compares trimmed user input against a step's expected answer.
// Comparison is case-insensitive via Unicode case folding. The regex mode
// tests a case-insensitive pattern against the original-case input and
// fails closed on an invalid pattern. oneOf degrades to a single exact
// comparison when the answer was not authored as a list.
func Matches(input string, expected *content.Answer, mode string) bool {
	if expected == nil {
		return false
	}

	switch mode {
	case MatchIncludes:
		return strings.Contains(fold(input), fold(expected.Single()))
	case MatchRegex:
		re, err := regexp.Compile("(?i)" + expected.Single())
		if err != nil {
			return false
		}
		return re.MatchString(input)
	case MatchOneOf:
		if !expected.IsList() {
			return fold(input) == fold(expected.Single())
		}
		for _, v := range expected.Values() {
			if fold(input) == fold(v) {
				return true
			}
		}
		return false
	default: // MatchExact
		return fold(input) == fold(expected.Single())
	}
}

func fold(s string) string {
	return cases.Fold().String(s)
}
