//go:build cgo && !notesseract

package main

import (
	"strings"

	"github.com/zombor/receipt-extractor/internal/scanning"
	"github.com/zombor/receipt-extractor/internal/scanning/tesseract"
)

// tesseractAvailable reports whether the binary links libtesseract
const tesseractAvailable = true

// newTesseract builds the local recognizer from '+' joined languages
func newTesseract(languages string) (scanning.Recognizer, error) {
	return tesseract.New(strings.Split(languages, "+")...), nil
}
