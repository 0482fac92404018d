package extraction

import (
	"regexp"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Candidates holds what each strategy proposed for one recognition.
type Candidates struct {
	Merchant Candidate[string]
	Amount   Candidate[decimal.Decimal]
	Date     Candidate[civil.Date]
}

// Confidences returns the local confidences in merchant, amount, date order.
// Absent fields count as zero.
func (c Candidates) Confidences() []float64 {
	conf := func(found bool, v float64) float64 {
		if !found {
			return 0
		}
		return v
	}
	return []float64{
		conf(c.Merchant.Found(), c.Merchant.Confidence),
		conf(c.Amount.Found(), c.Amount.Confidence),
		conf(c.Date.Found(), c.Date.Confidence),
	}
}

// Parser runs the three field strategies over the same lines.
type Parser struct {
	keywords *regexp.Regexp
	order    DateOrder
}

// NewParser creates a Parser from the engine configuration.
func NewParser(cfg Config) *Parser {
	order := cfg.DateOrder
	if order == "" {
		order = DateOrderMDY
	}
	return &Parser{
		keywords: KeywordMatcher(cfg.TotalKeywords),
		order:    order,
	}
}

// Parse applies every strategy independently. It never fails; a field the
// strategy cannot find is reported as absent.
func (p *Parser) Parse(lines []string, today civil.Date) Candidates {
	return Candidates{
		Merchant: ParseMerchant(lines),
		Amount:   ParseAmount(lines, p.keywords),
		Date:     ParseDate(lines, today, p.order),
	}
}
