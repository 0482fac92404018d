package extraction

import (
	"fmt"
	"time"
)

// DateOrder is the day/month order used to settle ambiguous numeric dates.
type DateOrder string

const (
	DateOrderMDY DateOrder = "MDY"
	DateOrderDMY DateOrder = "DMY"
)

// Config holds the tunables of the extraction engine.
type Config struct {
	// MaxImageBytes is the largest accepted upload.
	MaxImageBytes int64
	// AllowHEIC and AllowPDF widen the accepted formats beyond JPEG/PNG.
	AllowHEIC bool
	AllowPDF  bool

	// TargetLongEdge is the pixel length of the longer side after rescaling.
	TargetLongEdge int
	Contrast       float64
	MaxSkewDegrees float64
	SkewStep       float64

	RecognitionTimeout        time.Duration
	MaxConcurrentRecognitions int64

	TotalKeywords []string
	DateOrder     DateOrder

	// ReviewThreshold is the overall confidence below which a draft needs review.
	ReviewThreshold float64

	// Location is used to decide what "today" is when rejecting future dates.
	Location *time.Location
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxImageBytes:             5 << 20,
		TargetLongEdge:            1600,
		Contrast:                  30,
		MaxSkewDegrees:            10,
		SkewStep:                  0.5,
		RecognitionTimeout:        10 * time.Second,
		MaxConcurrentRecognitions: 2,
		TotalKeywords:             []string{"grand total", "total", "amount due", "balance due", "balance", "due"},
		DateOrder:                 DateOrderMDY,
		ReviewThreshold:           0.5,
		Location:                  time.Local,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("max image bytes must be positive, got %d", c.MaxImageBytes)
	}
	if c.TargetLongEdge <= 0 {
		return fmt.Errorf("target long edge must be positive, got %d", c.TargetLongEdge)
	}
	if c.Contrast < -100 || c.Contrast > 100 {
		return fmt.Errorf("contrast must be within [-100, 100], got %v", c.Contrast)
	}
	if c.MaxSkewDegrees < 0 || c.MaxSkewDegrees > 45 {
		return fmt.Errorf("max skew must be within [0, 45] degrees, got %v", c.MaxSkewDegrees)
	}
	if c.MaxSkewDegrees > 0 && c.SkewStep <= 0 {
		return fmt.Errorf("skew step must be positive, got %v", c.SkewStep)
	}
	if c.RecognitionTimeout <= 0 {
		return fmt.Errorf("recognition timeout must be positive, got %v", c.RecognitionTimeout)
	}
	if c.MaxConcurrentRecognitions <= 0 {
		return fmt.Errorf("max concurrent recognitions must be positive, got %d", c.MaxConcurrentRecognitions)
	}
	if len(c.TotalKeywords) == 0 {
		return fmt.Errorf("at least one total keyword is required")
	}
	if c.DateOrder != DateOrderMDY && c.DateOrder != DateOrderDMY {
		return fmt.Errorf("date order must be %s or %s, got %q", DateOrderMDY, DateOrderDMY, c.DateOrder)
	}
	if c.ReviewThreshold < 0 || c.ReviewThreshold > 1 {
		return fmt.Errorf("review threshold must be within [0, 1], got %v", c.ReviewThreshold)
	}
	return nil
}
