package extraction

// Assemble builds the externally visible result. Absent fields stay nil and
// the raw text is always copied in so a person can correct the draft.
func Assemble(raw RawRecognition, c Candidates, overall, threshold float64) ExtractionResult {
	res := ExtractionResult{
		Confidence:  overall,
		NeedsReview: NeedsReview(overall, threshold),
		RawText:     raw.Texts(),
		Fields:      make([]FieldCandidate, 0, 3),
	}

	merchant := FieldCandidate{Field: FieldMerchant, Line: NotFound}
	if c.Merchant.Found() {
		name := c.Merchant.Value
		res.Merchant = &name
		merchant = FieldCandidate{Field: FieldMerchant, Value: &name, Confidence: c.Merchant.Confidence, Line: c.Merchant.Line}
	}

	amount := FieldCandidate{Field: FieldAmount, Line: NotFound}
	if c.Amount.Found() && !c.Amount.Value.IsNegative() {
		v := c.Amount.Value.Round(2)
		s := v.StringFixed(2)
		res.Amount = &v
		amount = FieldCandidate{Field: FieldAmount, Value: &s, Confidence: c.Amount.Confidence, Line: c.Amount.Line}
	}

	date := FieldCandidate{Field: FieldDate, Line: NotFound}
	if c.Date.Found() {
		d := c.Date.Value
		s := d.String()
		res.Date = &d
		date = FieldCandidate{Field: FieldDate, Value: &s, Confidence: c.Date.Confidence, Line: c.Date.Line}
	}

	res.Fields = append(res.Fields, merchant, amount, date)
	return res
}
