//go:build !cgo || notesseract

package main

import (
	"errors"

	"github.com/zombor/receipt-extractor/internal/scanning"
)

const tesseractAvailable = false

var errTesseractUnavailable = errors.New("tesseract support is not built in, rebuild with cgo and without the notesseract tag or use --recognizer gemini|ollama")

func newTesseract(string) (scanning.Recognizer, error) {
	return nil, errTesseractUnavailable
}
