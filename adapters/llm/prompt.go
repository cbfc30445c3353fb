package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"verdict/internal/classify"
)

// promptMaxLog bounds the log excerpt in the prompt; the tail carries the
// failure, so keep the end rather than the start.
const promptMaxLog = 4000

func buildPrompt(logText, stackTrace string) string {
	var b strings.Builder
	b.WriteString(`You are a senior test automation engineer. Classify this test failure as PRODUCT_BUG or AUTOMATION_ISSUE.

PRODUCT_BUG indicators:
- Assertion failures on business logic (expected vs actual value mismatches, missing response keys)
- API responses with wrong data or wrong status codes

AUTOMATION_ISSUE indicators:
- ElementClickInterceptedException, StaleElementReferenceException, NoSuchElementException
- Page load timeouts ("'SomePage' NOT loaded even after :- X seconds")
- IllegalArgumentException in element operations
- Test data or environment setup problems

Respond with a single JSON object, no other text:
{
  "classification": "PRODUCT_BUG" or "AUTOMATION_ISSUE",
  "confidence": "HIGH" or "MEDIUM" or "LOW",
  "root_cause": "<one sentence>",
  "recommended_action": "<one sentence>",
  "root_cause_category": "ELEMENT_NOT_FOUND" or "TIMEOUT" or "ASSERTION_FAILURE" or "ENVIRONMENT_ISSUE" or "OTHER"
}

`)
	if stackTrace != "" {
		fmt.Fprintf(&b, "Stack trace:\n%s\n\n", clip(stackTrace, promptMaxLog))
	}
	fmt.Fprintf(&b, "Execution log:\n%s\n", clip(logText, promptMaxLog))
	return b.String()
}

// clip keeps the last n bytes of s.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// wire is the JSON shape the model is asked to produce.
type wire struct {
	Classification    string `json:"classification"`
	Confidence        string `json:"confidence"`
	RootCause         string `json:"root_cause"`
	RecommendedAction string `json:"recommended_action"`
	RootCauseCategory string `json:"root_cause_category"`
}

// parseClassification turns the model's reply into a classification.
// Models wrap JSON in markdown fences or prepend prose; strip both. A
// reply that is not JSON at all degrades to a keyword scan rather than an
// error, so one chatty reply does not burn a retry.
func parseClassification(response string) classify.Classification {
	var w wire
	if err := json.Unmarshal([]byte(extractJSON(response)), &w); err != nil {
		return scanKeywords(response)
	}

	cls := classify.Classification{
		Level1:            classify.AutomationIssue,
		Level2:            classify.Level2(strings.ToUpper(strings.TrimSpace(w.RootCauseCategory))),
		Confidence:        classify.Confidence(strings.ToUpper(strings.TrimSpace(w.Confidence))),
		RootCause:         strings.TrimSpace(w.RootCause),
		RecommendedAction: strings.TrimSpace(w.RecommendedAction),
		Source:            classify.SourceAI,
	}
	if strings.EqualFold(strings.TrimSpace(w.Classification), string(classify.ProductBug)) {
		cls.Level1 = classify.ProductBug
	}
	if cls.Level2 == "" {
		cls.Level2 = classify.Other
	}
	switch cls.Confidence {
	case classify.High, classify.Medium, classify.Low:
	default:
		cls.Confidence = classify.Low
	}
	return cls
}

// extractJSON pulls the JSON object out of a possibly-fenced reply.
func extractJSON(s string) string {
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+len("```"):]
	}
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[:i]
	}
	// Trim prose around the outermost braces.
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			s = s[i : j+1]
		}
	}
	return strings.TrimSpace(s)
}

// scanKeywords is the last-resort parse of a free-text reply.
func scanKeywords(response string) classify.Classification {
	upper := strings.ToUpper(response)
	cls := classify.Classification{
		Level1:            classify.AutomationIssue,
		Level2:            classify.Other,
		Confidence:        classify.Low,
		RootCause:         clip(strings.TrimSpace(response), 200),
		RecommendedAction: "Review the execution log manually",
		Source:            classify.SourceAI,
	}
	if strings.Contains(upper, "PRODUCT_BUG") || strings.Contains(upper, "PRODUCT BUG") {
		cls.Level1 = classify.ProductBug
	}
	for _, cat := range []classify.Level2{
		classify.ElementNotFound, classify.Timeout,
		classify.AssertionFailure, classify.EnvironmentIssue,
	} {
		if strings.Contains(upper, string(cat)) {
			cls.Level2 = cat
			break
		}
	}
	return cls
}
