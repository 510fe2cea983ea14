package gate

import "strings"

// Verdict classifies an owner's reply text.
type Verdict int

const (
	// VerdictNone means the text is not a recognized decision.
	VerdictNone Verdict = iota
	// VerdictAffirm approves the pending request.
	VerdictAffirm
	// VerdictDeny rejects the pending request.
	VerdictDeny
)

// Vocabulary holds the token sets accepted as an owner decision.
type Vocabulary struct {
	Affirm []string
	Deny   []string
}

// DefaultVocabulary returns the stock Arabic/English decision tokens plus
// common emoji equivalents.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Affirm: []string{"نعم", "yes", "y", "✅", "✔", "👍", "موافق", "قبول", "ok", "okay", "اوك", "ن"},
		Deny:   []string{"لا", "no", "n", "❌", "✖", "👎", "رفض", "منع", "مرفوض", "block", "ل"},
	}
}

// Classify matches the trimmed, case-folded text against the token sets.
func (v Vocabulary) Classify(text string) Verdict {
	token := strings.ToLower(strings.TrimSpace(text))
	for _, t := range v.Affirm {
		if token == t {
			return VerdictAffirm
		}
	}
	for _, t := range v.Deny {
		if token == t {
			return VerdictDeny
		}
	}
	return VerdictNone
}
