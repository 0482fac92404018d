package extraction

// Aggregate combines recognition confidence with the field confidences:
// ocr × mean(fields). Both risks multiply, so either one being poor drags
// the overall score down. Missing fields must be passed as 0.
func Aggregate(ocr float64, fields ...float64) float64 {
	if len(fields) == 0 {
		return 0
	}
	var sum float64
	for _, f := range fields {
		sum += clamp01(f)
	}
	return clamp01(clamp01(ocr) * sum / float64(len(fields)))
}

// NeedsReview reports whether the overall confidence is below the threshold
// at which a draft should be confirmed by a person.
func NeedsReview(overall, threshold float64) bool {
	return overall < threshold
}

func clamp01(v float64) float64 {
	switch {
	case v != v, v < 0: // NaN counts as no confidence
		return 0
	case v > 1:
		return 1
	}
	return v
}
