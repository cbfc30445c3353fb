package classify

import (
	"regexp"
	"strings"
)

// The rule engine corrects the AI's Level2 category with deterministic
// pattern checks over the combined failure text (root cause, recommended
// action, execution log). Rules run in fixed precedence order and the
// first match wins; a match sets Source=RULE_OVERRIDE.

var (
	pageNotLoadedRe = regexp.MustCompile(
		`(?i)['"][^'"]*page[^'"]*['"]\s+not\s+loaded\s+even\s+after`)
	elementNotVisibleRe = regexp.MustCompile(
		`(?i)element\s+['"][^'"]+['"]\s+is\s+not\s+visible(\s+and\s+clickable)?\s+even\s+after\s+waiting`)
	timeoutWaitingRe = regexp.MustCompile(
		`(?i)timeoutexception.*waiting\s+for\s+element\s+to\s+be\s+(clickable|visible)`)
	expectedButActualRe = regexp.MustCompile(
		`(?i)expected\s+[^.]*but\s+actual`)
	missingKeyColonRe = regexp.MustCompile(
		`(?i)missing\s+(key|field)s?\s*:`)
	assertsFailedRe = regexp.MustCompile(
		`(?i)the\s+following\s+asserts\s+failed`)
)

type rule struct {
	name string
	// onlyWhen restricts filter rules to a current category; empty means
	// the rule always runs.
	onlyWhen Level2
	category Level2
	matches  func(text string) bool
}

// ruleTable in precedence order; earlier entries win.
var ruleTable = []rule{
	{
		name:     "element-click-intercepted",
		category: ElementNotFound,
		matches: func(text string) bool {
			return strings.Contains(text, "elementclickinterceptedexception")
		},
	},
	{
		name:     "page-load-timeout",
		category: Timeout,
		matches:  isPageLoadTimeout,
	},
	{
		name:     "element-locator",
		category: ElementNotFound,
		matches:  isLocatorFailure,
	},
	{
		name:     "illegal-argument",
		category: ElementNotFound,
		matches: func(text string) bool {
			return strings.Contains(text, "illegalargumentexception")
		},
	},
	{
		// TIMEOUT without a recognized page-load or element-wait pattern
		// is reclassified as OTHER.
		name:     "non-page-timeout-filter",
		onlyWhen: Timeout,
		category: Other,
		matches: func(text string) bool {
			return !isPageLoadTimeout(text)
		},
	},
	{
		// ASSERTION_FAILURE must show actual assertion text, and must not
		// be a disguised WebDriver failure.
		name:     "assertion-filter",
		onlyWhen: AssertionFailure,
		category: Other,
		matches: func(text string) bool {
			return isClearlyNotAssertion(text) || !isAssertionText(text)
		},
	},
}

func isPageLoadTimeout(text string) bool {
	return pageNotLoadedRe.MatchString(text) ||
		strings.Contains(text, "not loaded even after") ||
		elementNotVisibleRe.MatchString(text) ||
		timeoutWaitingRe.MatchString(text)
}

func isLocatorFailure(text string) bool {
	if strings.Contains(text, "staleelementreferenceexception") ||
		strings.Contains(text, "stringindexoutofboundsexception") {
		return true
	}
	if strings.Contains(text, "nullpointerexception") &&
		(strings.Contains(text, "webelement") ||
			strings.Contains(text, "getpageelement") ||
			strings.Contains(text, "gettext()")) {
		return true
	}
	if strings.Contains(text, "indexoutofboundsexception") &&
		(strings.Contains(text, "length 0") ||
			strings.Contains(text, "index 0") ||
			strings.Contains(text, "out of bounds for length 0")) {
		return true
	}
	return false
}

func isClearlyNotAssertion(text string) bool {
	for _, marker := range []string{
		"nosuchelementexception",
		"elementclickinterceptedexception",
		"staleelementreferenceexception",
		"timeoutexception",
		"webdriverexception",
		"not loaded even after",
	} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return pageNotLoadedRe.MatchString(text)
}

func isAssertionText(text string) bool {
	return expectedButActualRe.MatchString(text) ||
		missingKeyColonRe.MatchString(text) ||
		assertsFailedRe.MatchString(text) ||
		strings.Contains(text, "key/value is null") ||
		(strings.Contains(text, "expected") && strings.Contains(text, "actual"))
}

// ApplyRules refines a classification against the combined failure text.
// Unknown Level2 labels from the classifier are folded first
// (NETWORK_ISSUE and ENVIRONMENT_FAILURE become ENVIRONMENT_ISSUE), then
// the rule table runs, then the assertion invariant is enforced:
// ASSERTION_FAILURE is always a PRODUCT_BUG, whatever either stage said.
func ApplyRules(c Classification, logText string) Classification {
	switch string(c.Level2) {
	case "NETWORK_ISSUE", "ENVIRONMENT_FAILURE":
		c.Level2 = EnvironmentIssue
	}

	text := strings.ToLower(c.RootCause + " " + c.RecommendedAction + " " + logText)
	for _, r := range ruleTable {
		if r.onlyWhen != "" && c.Level2 != r.onlyWhen {
			continue
		}
		if r.matches(text) {
			c.Level2 = r.category
			c.Source = SourceRuleOverride
			break
		}
	}

	if c.Level2 == AssertionFailure {
		c.Level1 = ProductBug
	}
	return c
}
