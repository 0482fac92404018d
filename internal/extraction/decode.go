package extraction

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// decodeImage decodes upload bytes of an already validated format.
func decodeImage(data []byte, format string) (image.Image, error) {
	switch format {
	case formatJPEG, formatPNG:
		// EXIF orientation matters for phone photos, the pixels are often stored sideways
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", format, err)
		}
		return img, nil
	case formatHEIC, formatHEIF:
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	case formatPDF:
		return pdfFirstPage(data)
	default:
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
}

// pdfFirstPage renders the first page of a PDF, most receipts are single page.
func pdfFirstPage(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}
