// Package tesseract recognizes receipt text locally with libtesseract.
// It needs cgo and the tesseract development headers to build.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

// Tesseract implements the Recognizer interface using a local tesseract install
type Tesseract struct {
	languages []string
}

// New creates a Tesseract recognizer. Languages default to English.
func New(languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Tesseract{languages: languages}
}

// Recognize transcribes the image line by line. gosseract cannot be
// interrupted, so the call runs to completion once started and the caller
// enforces deadlines. Returning early would leave the OCR work running
// outside any concurrency limit.
func (t *Tesseract) Recognize(ctx context.Context, img extraction.NormalizedImage) (extraction.RawRecognition, error) {
	if err := ctx.Err(); err != nil {
		return extraction.RawRecognition{}, err
	}
	return t.recognize(img.PNG)
}

func (t *Tesseract) recognize(png []byte) (extraction.RawRecognition, error) {
	// clients are not safe for concurrent use, one per call
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return extraction.RawRecognition{}, fmt.Errorf("setting language: %w", err)
	}
	// assume a single uniform block of text
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return extraction.RawRecognition{}, fmt.Errorf("setting page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return extraction.RawRecognition{}, fmt.Errorf("loading image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return extraction.RawRecognition{}, fmt.Errorf("recognizing text: %w", err)
	}

	return fromBoxes(boxes), nil
}

// fromBoxes converts text-line boxes into a recognition. Tesseract scores
// are percentages; the overall score is the mean over non-blank lines.
func fromBoxes(boxes []gosseract.BoundingBox) extraction.RawRecognition {
	raw := extraction.RawRecognition{Lines: make([]extraction.Line, 0, len(boxes))}
	var sum float64
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		conf := b.Confidence / 100
		raw.Lines = append(raw.Lines, extraction.Line{Text: text, Confidence: &conf})
		sum += conf
	}
	if len(raw.Lines) > 0 {
		raw.Confidence = sum / float64(len(raw.Lines))
	}
	return raw
}

// Close is a no-op, clients are released after each call
func (t *Tesseract) Close() error {
	return nil
}
