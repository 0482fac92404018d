package extraction

import (
	"strings"
	"unicode"
)

const (
	merchantTopConfidence   = 0.7
	merchantLowerConfidence = 0.3
	merchantTopLines        = 5
	maxMerchantRunes        = 100
)

// ParseMerchant takes the first line that is not blank, not a lone date or
// amount, and not only punctuation and digits. Store headers like addresses
// are deliberately not filtered further.
func ParseMerchant(lines []string) Candidate[string] {
	for i, line := range lines {
		name := strings.TrimSpace(line)
		if name == "" || !strings.ContainsFunc(name, unicode.IsLetter) {
			continue
		}
		if isDateLine(name) || isMoneyLine(name) {
			continue
		}
		if r := []rune(name); len(r) > maxMerchantRunes {
			name = strings.TrimSpace(string(r[:maxMerchantRunes]))
		}
		conf := merchantLowerConfidence
		if i < merchantTopLines {
			conf = merchantTopConfidence
		}
		return Candidate[string]{Value: name, Confidence: conf, Line: i}
	}
	return absent[string]()
}

func isNotLetter(r rune) bool {
	return !unicode.IsLetter(r)
}
