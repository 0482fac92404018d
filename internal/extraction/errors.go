package extraction

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidImage is returned for malformed, unsupported or oversized uploads.
	// It is raised before any recognition work starts and is not retryable.
	ErrInvalidImage = errors.New("invalid image")

	// ErrRecognitionUnavailable is returned when the text recognizer timed out or failed.
	// Callers may retry or fall back to manual entry.
	ErrRecognitionUnavailable = errors.New("recognition unavailable")
)

func invalidImage(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidImage, fmt.Sprintf(format, args...))
}

func recognitionUnavailable(cause error) error {
	return fmt.Errorf("%w: %w", ErrRecognitionUnavailable, cause)
}

// IsRetryable reports whether the caller may retry the extraction.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRecognitionUnavailable)
}

// UserMessage returns the text shown to a user for an extraction error.
func UserMessage(err error, cfg Config) string {
	switch {
	case errors.Is(err, ErrInvalidImage):
		return fmt.Sprintf("please upload a valid JPG/PNG under %dMB.", cfg.MaxImageBytes>>20)
	case errors.Is(err, ErrRecognitionUnavailable):
		return "could not read receipt, try again or enter manually."
	default:
		return "something went wrong while reading the receipt."
	}
}
