package verification

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

const (
	parseFailureFeedback = "Could not verify submission. Please provide clearer proof with more details."
	parseFailureConcern  = "Verification system could not analyze submission properly"
	lowConfidenceConcern = "Confidence score below threshold"
)

// ParseResult extracts the first JSON object from the model's reply.
// The second return is false when nothing usable was found; the Result
// is then the safe rejection.
func ParseResult(content string) (Result, bool) {
	raw := jsonObject.FindString(content)
	if raw == "" {
		return SafeRejection(), false
	}

	var r Result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return SafeRejection(), false
	}

	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 100 {
		r.Confidence = 100
	}
	if r.MatchedKeywords == nil {
		r.MatchedKeywords = []string{}
	}
	if r.Concerns == nil {
		r.Concerns = []string{}
	}
	return r, true
}

// SafeRejection is what an unreadable verdict turns into. Never an approval.
func SafeRejection() Result {
	return Result{
		Approved:        false,
		Confidence:      0,
		Feedback:        parseFailureFeedback,
		MatchedKeywords: []string{},
		Concerns:        []string{parseFailureConcern},
	}
}

// ApplyConfidenceFloor overrides approvals below ConfidenceFloor.
func ApplyConfidenceFloor(r Result, taskTitle string) Result {
	if !r.Approved || r.Confidence >= ConfidenceFloor {
		return r
	}

	r.Approved = false
	r.Feedback = fmt.Sprintf(
		"Confidence too low (%s%%). Please provide clearer proof that specifically shows completion of \"%s\".",
		strconv.FormatFloat(r.Confidence, 'f', -1, 64), taskTitle,
	)
	r.Concerns = append(append([]string{}, r.Concerns...), lowConfidenceConcern)
	return r
}

var genericProofs = map[string]bool{
	"done":              true,
	"did it":            true,
	"i did it":          true,
	"i've done it":      true,
	"completed":         true,
	"complete":          true,
	"i completed it":    true,
	"finished":          true,
	"i finished":        true,
	"i finished it":     true,
	"all done":          true,
	"task done":         true,
	"task completed":    true,
	"i'm done":          true,
	"im done":           true,
	"it is done":        true,
	"finished the task": true,
}

// vagueText reports whether a text-only proof is empty or a bare
// completion claim. Anything more specific is left to the model.
func vagueText(s string) bool {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.TrimRight(norm, ".!?… ")
	return norm == "" || genericProofs[norm]
}

func insufficientProof(imageExpected bool) Result {
	concern := "Proof text is too vague to verify"
	if imageExpected {
		concern = "Attached image could not be analyzed and the text description is not specific enough"
	}
	return Result{
		Approved:        false,
		Confidence:      0,
		Feedback:        "Please provide more detailed proof of your work. Describe specifically what you completed or upload an image showing it.",
		MatchedKeywords: []string{},
		Concerns:        []string{concern},
	}
}
