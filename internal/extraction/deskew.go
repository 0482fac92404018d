package extraction

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

const (
	skewSampleEdge = 600
	inkThreshold   = 128
)

// estimateSkew returns the rotation in degrees (counter-clockwise) that makes
// text baselines horizontal. Candidate rotations of a downscaled copy are
// scored by how strongly ink concentrates into rows; level text lines give
// sharp row profiles with empty gaps between them.
func estimateSkew(img *image.NRGBA, maxDegrees, step float64) float64 {
	if maxDegrees <= 0 || step <= 0 {
		return 0
	}

	sample := imaging.Fit(img, skewSampleEdge, skewSampleEdge, imaging.Box)
	best, bestScore := 0.0, rowProfileScore(sample)
	if bestScore == 0 {
		return 0
	}

	// walk outwards from zero so ties keep the smaller correction
	steps := int(math.Floor(maxDegrees/step + 1e-9))
	for i := 1; i <= steps; i++ {
		for _, angle := range [2]float64{float64(i) * step, -float64(i) * step} {
			score := rowProfileScore(imaging.Rotate(sample, angle, color.White))
			if score > bestScore {
				best, bestScore = angle, score
			}
		}
	}
	return best
}

// rowProfileScore is the sum of squared per-row ink counts divided by the
// total ink, so it does not depend on canvas growth from rotation.
func rowProfileScore(img *image.NRGBA) float64 {
	b := img.Bounds()
	var sumSq, total float64
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		var ink float64
		for x := 0; x < len(row); x += 4 {
			if row[x] < inkThreshold && row[x+3] > 0 {
				ink++
			}
		}
		sumSq += ink * ink
		total += ink
	}
	if total == 0 {
		return 0
	}
	return sumSq / total
}
