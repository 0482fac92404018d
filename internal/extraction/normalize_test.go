package extraction

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/disintegration/imaging"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// pngHeader returns a PNG signature and IHDR chunk claiming the given size,
// without any pixel data.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth, grayscale

	chunk := append([]byte("IHDR"), ihdr...)
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

var _ = Describe("Normalizer", func() {
	var (
		normalizer *Normalizer
		upload     Upload
		result     NormalizedImage
		err        error
	)

	BeforeEach(func() {
		normalizer = NewNormalizer(DefaultConfig())
		upload = Upload{Data: encodeJPEG(stripedImage(300, 200)), ContentType: "image/jpeg"}
	})

	JustBeforeEach(func() {
		result, err = normalizer.Normalize(upload)
	})

	When("the image is small", func() {
		It("should scale the longer edge up to the target", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Width).To(Equal(1600))
			Expect(result.Height).To(BeNumerically("~", 1067, 1))
			Expect(result.SourceFormat).To(Equal("image/jpeg"))
		})

		It("should produce a grayscale PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			img, decodeErr := png.Decode(bytes.NewReader(result.PNG))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(result.Width))

			r, g, b, _ := img.At(result.Width/2, result.Height/2).RGBA()
			Expect(r).To(Equal(g))
			Expect(g).To(Equal(b))
		})

		It("should leave level text unrotated", func() {
			Expect(result.SkewDegrees).To(BeNumerically("~", 0, 0.5))
		})

		It("should be deterministic", func() {
			again, againErr := normalizer.Normalize(upload)
			Expect(againErr).NotTo(HaveOccurred())
			Expect(again.PNG).To(Equal(result.PNG))
		})
	})

	When("the image is portrait and large", func() {
		BeforeEach(func() {
			upload = Upload{Data: encodePNG(stripedImage(900, 2400)), ContentType: "image/png"}
		})

		It("should scale the height down to the target", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Height).To(Equal(1600))
			Expect(result.Width).To(Equal(600))
		})
	})

	When("the data is truncated", func() {
		BeforeEach(func() {
			data := encodePNG(stripedImage(300, 200))
			upload = Upload{Data: data[:len(data)/2], ContentType: "image/png"}
		})

		It("should reject it", func() {
			Expect(errors.Is(err, ErrInvalidImage)).To(BeTrue())
		})
	})

	When("the header claims an enormous bitmap", func() {
		BeforeEach(func() {
			upload = Upload{Data: pngHeader(10000, 5000), ContentType: "image/png"}
		})

		It("should reject it before decoding", func() {
			Expect(errors.Is(err, ErrInvalidImage)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("too large"))
		})
	})
})

var _ = Describe("estimateSkew", func() {
	It("should find the correction for rotated text", func() {
		rotated := imaging.Rotate(stripedImage(400, 400), 4, color.White)
		angle := estimateSkew(imaging.Grayscale(rotated), 10, 0.5)
		Expect(math.Abs(angle + 4)).To(BeNumerically("<=", 1))
	})

	It("should leave blank pages alone", func() {
		blank := imaging.New(200, 200, color.White)
		Expect(estimateSkew(blank, 10, 0.5)).To(BeZero())
	})

	It("should do nothing when disabled", func() {
		rotated := imaging.Rotate(stripedImage(200, 200), 4, color.White)
		Expect(estimateSkew(rotated, 0, 0.5)).To(BeZero())
	})
})

var _ = Describe("medianFilter3", func() {
	It("should remove isolated specks", func() {
		img := imaging.New(5, 5, color.White)
		img.Set(2, 2, color.Black)

		out := medianFilter3(img)
		Expect(out.NRGBAAt(2, 2)).To(Equal(color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
		Expect(out.Bounds()).To(Equal(image.Rect(0, 0, 5, 5)))
	})
})
