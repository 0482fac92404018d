package scanning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

// defaultModelConfidence is used when a model reports no confidence at all.
const defaultModelConfidence = 0.8

// linesReplySchema is the contract transcriptionPrompt asks the models for.
// Lines may be objects or bare strings; confidences are clamped later.
var linesReplySchema = jsonschema.MustCompileString("lines-reply.json", `{
	"type": "object",
	"required": ["lines"],
	"properties": {
		"lines": {
			"type": "array",
			"items": {
				"oneOf": [
					{"type": "string"},
					{
						"type": "object",
						"required": ["text"],
						"properties": {
							"text": {"type": "string"},
							"confidence": {"type": ["number", "null"]}
						}
					}
				]
			}
		},
		"confidence": {"type": ["number", "null"]}
	}
}`)

type linesReply struct {
	Lines      []replyLine `json:"lines"`
	Confidence *float64    `json:"confidence"`
}

// replyLine accepts either {"text": ..., "confidence": ...} or a bare string.
type replyLine struct {
	Text       string
	Confidence *float64
}

func (l *replyLine) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		l.Text = text
		return nil
	}
	var obj struct {
		Text       string   `json:"text"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	l.Text, l.Confidence = obj.Text, obj.Confidence
	return nil
}

// parseLinesJSON parses the transcription reply of a vision model
func parseLinesJSON(text string) (extraction.RawRecognition, error) {
	text = strings.TrimSpace(text)

	// Remove opening markdown code blocks
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return extraction.RawRecognition{}, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return extraction.RawRecognition{}, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return extraction.RawRecognition{}, fmt.Errorf("unmarshaling json: %w", err)
	}
	if err := linesReplySchema.Validate(doc); err != nil {
		return extraction.RawRecognition{}, fmt.Errorf("reply does not match schema: %w", err)
	}

	var reply linesReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return extraction.RawRecognition{}, fmt.Errorf("unmarshaling json: %w", err)
	}

	raw := extraction.RawRecognition{Lines: make([]extraction.Line, 0, len(reply.Lines))}
	var sum float64
	var scored int
	for _, l := range reply.Lines {
		raw.Lines = append(raw.Lines, extraction.Line{Text: l.Text, Confidence: l.Confidence})
		if l.Confidence != nil {
			sum += *l.Confidence
			scored++
		}
	}

	// Fall back to the line scores when the model skipped the overall score
	switch {
	case reply.Confidence != nil:
		raw.Confidence = *reply.Confidence
	case scored > 0:
		raw.Confidence = sum / float64(scored)
	case len(raw.Lines) > 0:
		raw.Confidence = defaultModelConfidence
	}

	return raw, nil
}
