package extraction

import (
	"context"
	"strings"
)

// Upload is an image as received from the upload boundary.
type Upload struct {
	Data        []byte
	ContentType string
}

// NormalizedImage is the recognizer-ready rendition of an upload.
type NormalizedImage struct {
	PNG          []byte
	Width        int
	Height       int
	SkewDegrees  float64
	SourceFormat string
}

// Line is a single recognized line of text.
type Line struct {
	Text string `json:"text"`
	// Confidence is nil when the recognizer does not report per-line scores.
	Confidence *float64 `json:"confidence,omitempty"`
}

// RawRecognition is the output of one recognizer call.
type RawRecognition struct {
	Lines      []Line  `json:"lines"`
	Confidence float64 `json:"confidence"`
}

// Texts returns the line texts in order.
func (r RawRecognition) Texts() []string {
	texts := make([]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		texts = append(texts, l.Text)
	}
	return texts
}

// Recognizer turns a normalized image into text lines.
type Recognizer interface {
	Recognize(ctx context.Context, img NormalizedImage) (RawRecognition, error)
}

// RecognizerFunc adapts a function to the Recognizer interface.
type RecognizerFunc func(ctx context.Context, img NormalizedImage) (RawRecognition, error)

func (f RecognizerFunc) Recognize(ctx context.Context, img NormalizedImage) (RawRecognition, error) {
	return f(ctx, img)
}

// CleanRecognition splits multi-line entries, trims whitespace, drops blank
// lines and clamps confidences into [0,1].
func CleanRecognition(raw RawRecognition) RawRecognition {
	out := RawRecognition{
		Lines:      make([]Line, 0, len(raw.Lines)),
		Confidence: clamp01(raw.Confidence),
	}
	for _, l := range raw.Lines {
		text := strings.ReplaceAll(l.Text, "\r\n", "\n")
		text = strings.ReplaceAll(text, "\r", "\n")
		for _, part := range strings.Split(text, "\n") {
			part = strings.Join(strings.Fields(part), " ")
			if part == "" {
				continue
			}
			line := Line{Text: part}
			if l.Confidence != nil {
				c := clamp01(*l.Confidence)
				line.Confidence = &c
			}
			out.Lines = append(out.Lines, line)
		}
	}
	return out
}

// Field names a target field of the receipt draft.
type Field string

const (
	FieldMerchant Field = "merchant"
	FieldAmount   Field = "amount"
	FieldDate     Field = "date"
)

// NotFound is the line index of an absent candidate.
const NotFound = -1

// Candidate is what a single parsing strategy proposes for its field.
type Candidate[T any] struct {
	Value      T
	Confidence float64
	Line       int
}

// Found reports whether the strategy produced a value.
func (c Candidate[T]) Found() bool {
	return c.Line != NotFound
}

func absent[T any]() Candidate[T] {
	return Candidate[T]{Line: NotFound}
}

// FieldCandidate is the reported form of a candidate.
type FieldCandidate struct {
	Field      Field   `json:"field"`
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
	Line       int     `json:"line"`
}
