// Package classify refines failure classifications: an external AI
// classifier proposes a two-level label, a deterministic rule engine
// corrects it, and an unconditional invariant keeps assertion failures
// pinned to product bugs. Classifier calls are deduplicated by a
// normalized failure signature and dispatched concurrently.
package classify

import "errors"

// Level1 is the coarse failure attribution.
type Level1 string

const (
	ProductBug      Level1 = "PRODUCT_BUG"
	AutomationIssue Level1 = "AUTOMATION_ISSUE"
)

// Level2 is the failure category.
type Level2 string

const (
	ElementNotFound  Level2 = "ELEMENT_NOT_FOUND"
	Timeout          Level2 = "TIMEOUT"
	AssertionFailure Level2 = "ASSERTION_FAILURE"
	EnvironmentIssue Level2 = "ENVIRONMENT_ISSUE"
	Other            Level2 = "OTHER"
)

// Confidence is the classifier's self-reported certainty.
type Confidence string

const (
	High   Confidence = "HIGH"
	Medium Confidence = "MEDIUM"
	Low    Confidence = "LOW"
)

// Source records which stage produced the final Level2 category.
type Source string

const (
	SourceAI           Source = "AI"
	SourceRuleOverride Source = "RULE_OVERRIDE"
)

// Classification is the refined verdict for one failing test.
type Classification struct {
	Level1            Level1     `json:"level1"`
	Level2            Level2     `json:"level2"`
	Confidence        Confidence `json:"confidence"`
	RootCause         string     `json:"root_cause"`
	RecommendedAction string     `json:"recommended_action"`
	Source            Source     `json:"source"`
}

// Fallback is the classification used when the external classifier is
// unavailable or exhausted its retry budget.
func Fallback() Classification {
	return Classification{
		Level1:            AutomationIssue,
		Level2:            Other,
		Confidence:        Low,
		RootCause:         "classification unavailable",
		RecommendedAction: "Review the execution log manually",
		Source:            SourceAI,
	}
}

// IsTransient reports whether a classifier error is worth retrying.
// Errors that expose Transient() bool decide for themselves; anything
// else is treated as permanent.
func IsTransient(err error) bool {
	var t interface{ Transient() bool }
	if errors.As(err, &t) {
		return t.Transient()
	}
	return false
}
