package extraction

import (
	"encoding/json"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// ExtractionResult is the structured draft handed to the expense-creation flow.
// Absent fields are nil.
type ExtractionResult struct {
	Merchant    *string
	Amount      *decimal.Decimal
	Date        *civil.Date
	Confidence  float64
	NeedsReview bool
	RawText     []string
	Fields      []FieldCandidate
}

type resultJSON struct {
	Merchant    *string          `json:"merchant"`
	Amount      *string          `json:"amount"`
	Date        *civil.Date      `json:"date"`
	Confidence  float64          `json:"confidence"`
	NeedsReview bool             `json:"needs_review"`
	RawText     []string         `json:"raw_text"`
	Fields      []FieldCandidate `json:"fields"`
}

// MarshalJSON encodes the amount with exactly two fractional digits.
func (r ExtractionResult) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Merchant:    r.Merchant,
		Date:        r.Date,
		Confidence:  r.Confidence,
		NeedsReview: r.NeedsReview,
		RawText:     r.RawText,
		Fields:      r.Fields,
	}
	if r.Amount != nil {
		s := r.Amount.StringFixed(2)
		out.Amount = &s
	}
	if out.RawText == nil {
		out.RawText = []string{}
	}
	if out.Fields == nil {
		out.Fields = []FieldCandidate{}
	}
	return json.Marshal(out)
}

func (r *ExtractionResult) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = ExtractionResult{
		Merchant:    in.Merchant,
		Date:        in.Date,
		Confidence:  in.Confidence,
		NeedsReview: in.NeedsReview,
		RawText:     in.RawText,
		Fields:      in.Fields,
	}
	if in.Amount != nil {
		d, err := decimal.NewFromString(*in.Amount)
		if err != nil {
			return fmt.Errorf("parsing amount %q: %w", *in.Amount, err)
		}
		r.Amount = &d
	}
	if r.RawText == nil {
		r.RawText = []string{}
	}
	return nil
}
