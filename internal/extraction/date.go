package extraction

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

const (
	dateUnambiguousConfidence = 0.9
	dateAmbiguousConfidence   = 0.6
)

// Receipts older than this are taken as misreads.
var minReceiptDate = civil.Date{Year: 2000, Month: time.January, Day: 1}

type dateKind int

const (
	dateYMD dateKind = iota
	dateNumeric
	dateDayMonthName
	dateMonthNameDay
)

// monthNames matches full English month names and their abbreviations only,
// so item words like MARGARITA or MAYO are not read as months.
const monthNames = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?`

var datePatterns = []struct {
	kind dateKind
	re   *regexp.Regexp
}{
	{dateYMD, regexp.MustCompile(`\b(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})\b`)},
	{dateNumeric, regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})[-/.](\d{4}|\d{2})\b`)},
	{dateDayMonthName, regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?[\s.-]*` + monthNames + `[\s,.-]*(\d{4}|\d{2})\b`)},
	{dateMonthNameDay, regexp.MustCompile(`(?i)\b` + monthNames + `\s*(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)},
}

type dateToken struct {
	kind       dateKind
	start, end int
	groups     []string
}

// ParseDate returns the first acceptable date on the receipt, scanning lines
// top to bottom and tokens left to right. Dates after today are rejected.
// Numeric dates whose day and month could be swapped are resolved by
// preferring the reading that is not in the future, then by order.
func ParseDate(lines []string, today civil.Date, order DateOrder) Candidate[civil.Date] {
	for i, line := range lines {
		for _, tok := range dateTokens(line) {
			if d, conf, ok := resolveDate(tok, today, order); ok {
				return Candidate[civil.Date]{Value: d, Confidence: conf, Line: i}
			}
		}
	}
	return absent[civil.Date]()
}

// dateTokens finds non-overlapping date-like tokens in left-to-right order.
// At equal starting positions the more specific pattern wins.
func dateTokens(line string) []dateToken {
	var all []dateToken
	for _, p := range datePatterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(line, -1) {
			// "2 MAR 12.50" ends in a price, not a year
			if followedByFraction(line[m[1]:]) {
				continue
			}
			tok := dateToken{kind: p.kind, start: m[0], end: m[1]}
			for g := 2; g < len(m); g += 2 {
				tok.groups = append(tok.groups, line[m[g]:m[g+1]])
			}
			all = append(all, tok)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].start < all[j].start })

	out := all[:0]
	end := -1
	for _, tok := range all {
		if tok.start < end {
			continue
		}
		out = append(out, tok)
		end = tok.end
	}
	return out
}

func followedByFraction(rest string) bool {
	return len(rest) >= 2 && (rest[0] == '.' || rest[0] == ',') && rest[1] >= '0' && rest[1] <= '9'
}

func resolveDate(tok dateToken, today civil.Date, order DateOrder) (civil.Date, float64, bool) {
	switch tok.kind {
	case dateYMD:
		d, ok := makeDate(tok.groups[0], tok.groups[1], tok.groups[2])
		return d, dateUnambiguousConfidence, ok && acceptableDate(d, today)
	case dateDayMonthName:
		d, ok := makeDate(tok.groups[2], monthNumber(tok.groups[1]), tok.groups[0])
		return d, dateUnambiguousConfidence, ok && acceptableDate(d, today)
	case dateMonthNameDay:
		d, ok := makeDate(tok.groups[2], monthNumber(tok.groups[0]), tok.groups[1])
		return d, dateUnambiguousConfidence, ok && acceptableDate(d, today)
	case dateNumeric:
		return resolveNumeric(tok.groups[0], tok.groups[1], tok.groups[2], today, order)
	}
	return civil.Date{}, 0, false
}

func resolveNumeric(first, second, year string, today civil.Date, order DateOrder) (civil.Date, float64, bool) {
	dmy, dmyValid := makeDate(year, second, first)
	mdy, mdyValid := makeDate(year, first, second)

	switch {
	case dmyValid && mdyValid && dmy != mdy:
		dmyOK, mdyOK := acceptableDate(dmy, today), acceptableDate(mdy, today)
		switch {
		case dmyOK && mdyOK:
			if order == DateOrderDMY {
				return dmy, dateAmbiguousConfidence, true
			}
			return mdy, dateAmbiguousConfidence, true
		case dmyOK:
			return dmy, dateAmbiguousConfidence, true
		case mdyOK:
			return mdy, dateAmbiguousConfidence, true
		}
		return civil.Date{}, 0, false
	case dmyValid:
		return dmy, dateUnambiguousConfidence, acceptableDate(dmy, today)
	case mdyValid:
		return mdy, dateUnambiguousConfidence, acceptableDate(mdy, today)
	}
	return civil.Date{}, 0, false
}

func makeDate(year, month, day string) (civil.Date, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return civil.Date{}, false
	}
	if len(year) == 2 {
		y += 2000
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return civil.Date{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return civil.Date{}, false
	}
	date := civil.Date{Year: y, Month: time.Month(m), Day: d}
	return date, date.IsValid()
}

func acceptableDate(d, today civil.Date) bool {
	return !d.After(today) && !d.Before(minReceiptDate)
}

func monthNumber(name string) string {
	idx := strings.Index("janfebmaraprmayjunjulaugsepoctnovdec", strings.ToLower(name[:3]))
	if idx < 0 || idx%3 != 0 {
		return "0"
	}
	return strconv.Itoa(idx/3 + 1)
}

// isDateLine reports whether a line holds nothing but a date, optionally with
// a time or a "Date" label.
func isDateLine(line string) bool {
	tokens := dateTokens(line)
	if len(tokens) == 0 {
		return false
	}
	var rest strings.Builder
	prev := 0
	for _, tok := range tokens {
		rest.WriteString(line[prev:tok.start])
		rest.WriteByte(' ')
		prev = tok.end
	}
	rest.WriteString(line[prev:])

	for _, word := range strings.FieldsFunc(strings.ToLower(rest.String()), isNotLetter) {
		if word != "date" && word != "am" && word != "pm" {
			return false
		}
	}
	return true
}
