package scanning

import "github.com/zombor/receipt-extractor/internal/extraction"

// Recognizer is a text recognizer backed by an external model that holds
// resources until closed.
type Recognizer interface {
	extraction.Recognizer
	// Close releases the client resources
	Close() error
}

// transcriptionPrompt is the shared prompt used by all LLM providers. The
// models only transcribe; field interpretation happens in the parser.
const transcriptionPrompt = `You are transcribing a photo of a receipt. Read every line of text in the image from top to bottom, exactly as printed.

Return ONLY valid JSON in this exact format:
{
  "lines": [
    {"text": "first line as printed", "confidence": 0.95}
  ],
  "confidence": 0.9
}

Important:
- One entry per printed line, in reading order
- Keep numbers, currency symbols, dates and punctuation exactly as printed; do not reformat or compute anything
- "confidence" is your certainty between 0 and 1 that the text was read correctly, per line and for the whole receipt
- If the image contains no readable text, return {"lines": [], "confidence": 0}
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

const systemPrompt = "You are an expert at reading receipts and invoices. You transcribe text exactly as printed and never invent content."
