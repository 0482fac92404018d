package extraction

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// maxDecodedPixels guards against small files that expand into huge bitmaps.
const maxDecodedPixels = 40_000_000

// Normalizer prepares uploads for text recognition. It holds no mutable
// state and is safe for concurrent use.
type Normalizer struct {
	cfg Config
}

// NewNormalizer creates a Normalizer with the given configuration.
func NewNormalizer(cfg Config) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Normalize validates and decodes the upload, then applies grayscale,
// contrast/denoise, deskew and rescale in that order. The output is PNG.
func (n *Normalizer) Normalize(u Upload) (NormalizedImage, error) {
	format, err := ValidateUpload(u, n.cfg)
	if err != nil {
		return NormalizedImage{}, err
	}

	if format == formatJPEG || format == formatPNG {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(u.Data))
		if err != nil {
			return NormalizedImage{}, invalidImage("reading image header: %v", err)
		}
		if cfg.Width*cfg.Height > maxDecodedPixels {
			return NormalizedImage{}, invalidImage("image is %dx%d pixels, too large to process", cfg.Width, cfg.Height)
		}
	}

	src, err := decodeImage(u.Data, format)
	if err != nil {
		return NormalizedImage{}, invalidImage("%v", err)
	}
	if b := src.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return NormalizedImage{}, invalidImage("image has no pixels")
	}

	img := imaging.Grayscale(src)
	img = n.enhance(img)

	angle := estimateSkew(img, n.cfg.MaxSkewDegrees, n.cfg.SkewStep)
	if angle != 0 {
		img = imaging.Rotate(img, angle, color.White)
	}

	img = rescale(img, n.cfg.TargetLongEdge)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return NormalizedImage{}, fmt.Errorf("encoding normalized image: %w", err)
	}

	return NormalizedImage{
		PNG:          buf.Bytes(),
		Width:        img.Bounds().Dx(),
		Height:       img.Bounds().Dy(),
		SkewDegrees:  angle,
		SourceFormat: format,
	}, nil
}

func (n *Normalizer) enhance(img *image.NRGBA) *image.NRGBA {
	img = imaging.AdjustContrast(img, n.cfg.Contrast)
	img = imaging.Sharpen(img, 1.0)
	return medianFilter3(img)
}

// rescale resizes so that the longer edge equals target. Shrinking uses box
// (area) averaging, enlarging uses Lanczos.
func rescale(img *image.NRGBA, target int) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	long := w
	if h > long {
		long = h
	}
	if long == target {
		return img
	}

	filter := imaging.Lanczos
	if long > target {
		filter = imaging.Box
	}
	if w >= h {
		return imaging.Resize(img, target, 0, filter)
	}
	return imaging.Resize(img, 0, target, filter)
}

// medianFilter3 applies a 3x3 median to a grayscale image, removing speckle
// noise while keeping glyph edges.
func medianFilter3(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))

	gray := func(x, y int) uint8 {
		if x < 0 {
			x = 0
		} else if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		} else if y >= h {
			y = h - 1
		}
		return img.Pix[(y*img.Stride)+x*4]
	}

	var window [9]uint8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			k := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					window[k] = gray(x+dx, y+dy)
					k++
				}
			}
			for i := 1; i < len(window); i++ {
				for j := i; j > 0 && window[j-1] > window[j]; j-- {
					window[j-1], window[j] = window[j], window[j-1]
				}
			}
			v := window[4]
			i := y*out.Stride + x*4
			out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = v, v, v, 255
		}
	}
	return out
}
