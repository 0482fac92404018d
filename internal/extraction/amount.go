package extraction

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	amountKeywordConfidence  = 0.9
	amountFallbackConfidence = 0.5
)

// reMoneyRun finds maximal runs of digits and separators. Whether a run is a
// monetary token is decided by parseMoney.
var reMoneyRun = regexp.MustCompile(`\d(?:[\d.,]*\d)?`)

// reGluedAmount splits a word from an amount glued to it, as OCR does with
// "TOTAL3.50". Only used when the split reveals a total keyword.
var reGluedAmount = regexp.MustCompile(`(\pL)(\d[\d.,]*[.,]\d\d)\b`)

// reSubtotal matches spaced or hyphenated subtotals, which would otherwise
// count as "total" lines.
var reSubtotal = regexp.MustCompile(`(?i)\bsub[\s-]*total\b`)

type moneyToken struct {
	value decimal.Decimal
	start int
}

// KeywordMatcher builds a case-insensitive whole-word matcher for total
// keywords. Multi-word keywords tolerate any whitespace between words.
func KeywordMatcher(keywords []string) *regexp.Regexp {
	alts := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		words := strings.Fields(kw)
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alts = append(alts, strings.Join(words, `\s+`))
	}
	if len(alts) == 0 {
		return regexp.MustCompile(`$^`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
}

// ParseAmount picks the receipt total. Lines containing a total keyword win:
// each contributes its rightmost monetary token and the largest of those is
// taken. Without keyword lines the largest token anywhere is the best guess,
// since subtotal, tax and total usually ascend.
func ParseAmount(lines []string, keywords *regexp.Regexp) Candidate[decimal.Decimal] {
	keyword := absent[decimal.Decimal]()
	fallback := absent[decimal.Decimal]()

	for i, line := range lines {
		tokens := moneyTokens(line)
		isTotal := isTotalLine(line, keywords)
		if !isTotal {
			if spaced := reGluedAmount.ReplaceAllString(line, "$1 $2"); isTotalLine(spaced, keywords) {
				tokens, isTotal = moneyTokens(spaced), true
			}
		}
		if len(tokens) == 0 {
			continue
		}
		for _, t := range tokens {
			if !fallback.Found() || t.value.GreaterThan(fallback.Value) {
				fallback = Candidate[decimal.Decimal]{Value: t.value, Confidence: amountFallbackConfidence, Line: i}
			}
		}
		if isTotal {
			last := tokens[len(tokens)-1]
			if !keyword.Found() || last.value.GreaterThan(keyword.Value) {
				keyword = Candidate[decimal.Decimal]{Value: last.value, Confidence: amountKeywordConfidence, Line: i}
			}
		}
	}

	if keyword.Found() {
		return keyword
	}
	return fallback
}

func isTotalLine(line string, keywords *regexp.Regexp) bool {
	return keywords.MatchString(reSubtotal.ReplaceAllString(line, " "))
}

// moneyTokens returns the monetary tokens of a line in left-to-right order.
func moneyTokens(line string) []moneyToken {
	var tokens []moneyToken
	for _, loc := range reMoneyRun.FindAllStringIndex(line, -1) {
		start, end := loc[0], loc[1]
		if start > 0 {
			prev, _ := utf8.DecodeLastRuneInString(line[:start])
			// SKUs like A12.50 and negative adjustments like -2.00
			if prev == '-' || prev == '−' || (unicode.IsLetter(prev) && !endsWithCurrencyCode(line[:start])) {
				continue
			}
		}
		if end < len(line) {
			next, _ := utf8.DecodeRuneInString(line[end:])
			if next == '%' {
				continue
			}
		}
		if v, ok := parseMoney(line[start:end]); ok {
			tokens = append(tokens, moneyToken{value: v, start: start})
		}
	}
	return tokens
}

// parseMoney accepts digit groups followed by a decimal separator and exactly
// two fractional digits, e.g. 3.50, 1,234.56, 1.234,56 or 1234,56.
func parseMoney(tok string) (decimal.Decimal, bool) {
	if len(tok) < 4 {
		return decimal.Decimal{}, false
	}
	decSep := tok[len(tok)-3]
	if decSep != '.' && decSep != ',' {
		return decimal.Decimal{}, false
	}
	frac := tok[len(tok)-2:]
	intPart := tok[:len(tok)-3]
	if !allDigits(frac) || intPart == "" {
		return decimal.Decimal{}, false
	}

	thouSep := byte(',')
	if decSep == ',' {
		thouSep = '.'
	}
	if strings.IndexByte(intPart, decSep) >= 0 {
		return decimal.Decimal{}, false
	}

	digits := intPart
	if strings.IndexByte(intPart, thouSep) >= 0 {
		groups := strings.Split(intPart, string(thouSep))
		if len(groups[0]) == 0 || len(groups[0]) > 3 {
			return decimal.Decimal{}, false
		}
		for _, g := range groups[1:] {
			if len(g) != 3 {
				return decimal.Decimal{}, false
			}
		}
		digits = strings.Join(groups, "")
	}
	if !allDigits(digits) {
		return decimal.Decimal{}, false
	}

	v, err := decimal.NewFromString(digits + "." + frac)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isMoneyLine reports whether the whole line is a single monetary value with
// an optional currency symbol or code.
func isMoneyLine(line string) bool {
	tokens := moneyTokens(line)
	if len(tokens) != 1 {
		return false
	}
	loc := reMoneyRun.FindStringIndex(line[tokens[0].start:])
	rest := strings.TrimSpace(line[:tokens[0].start] + " " + line[tokens[0].start+loc[1]:])
	rest = strings.Trim(rest, "$£€¥:*() ")
	return rest == "" || currencyCodes[strings.ToUpper(rest)]
}

var currencyCodes = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "CAD": true, "AUD": true, "INR": true, "JPY": true,
}

// endsWithCurrencyCode reports whether s ends in a standalone currency code,
// as in "USD12.50".
func endsWithCurrencyCode(s string) bool {
	if len(s) < 3 || !currencyCodes[strings.ToUpper(s[len(s)-3:])] {
		return false
	}
	if len(s) == 3 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(s[:len(s)-3])
	return !unicode.IsLetter(prev)
}
