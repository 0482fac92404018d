package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/semaphore"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Engine runs the extraction pipeline: validate, normalize, recognize,
// parse, aggregate, assemble. Requests share nothing except the limit on
// concurrent recognizer calls.
type Engine struct {
	cfg        Config
	recognizer Recognizer
	normalizer *Normalizer
	parser     *Parser
	slots      *semaphore.Weighted
	clock      Clock
	logger     *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

func WithNormalizer(n *Normalizer) Option {
	return func(e *Engine) {
		if n != nil {
			e.normalizer = n
		}
	}
}

func WithParser(p *Parser) Option {
	return func(e *Engine) {
		if p != nil {
			e.parser = p
		}
	}
}

// NewEngine creates an Engine. The configuration must be valid.
func NewEngine(recognizer Recognizer, cfg Config, opts ...Option) (*Engine, error) {
	if recognizer == nil {
		return nil, fmt.Errorf("recognizer is required")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid extraction config: %w", err)
	}

	e := &Engine{
		cfg:        cfg,
		recognizer: recognizer,
		normalizer: NewNormalizer(cfg),
		parser:     NewParser(cfg),
		slots:      semaphore.NewWeighted(cfg.MaxConcurrentRecognitions),
		clock:      systemClock{},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Extract turns an uploaded receipt image into a draft. Only ErrInvalidImage
// and ErrRecognitionUnavailable are returned; missing fields are encoded in
// the result.
func (e *Engine) Extract(ctx context.Context, u Upload) (*ExtractionResult, error) {
	start := e.clock.Now()

	img, err := e.normalizer.Normalize(u)
	if err != nil {
		if !errors.Is(err, ErrInvalidImage) {
			err = invalidImage("%v", err)
		}
		e.logger.Warn("rejected receipt image", "content_type", u.ContentType, "size", len(u.Data), "error", err)
		return nil, err
	}
	e.logger.Debug("normalized receipt image",
		"source_format", img.SourceFormat,
		"width", img.Width,
		"height", img.Height,
		"skew_degrees", img.SkewDegrees,
	)

	raw, err := e.recognize(ctx, img)
	if err != nil {
		e.logger.Error("receipt recognition failed", "error", err)
		return nil, err
	}

	today := civil.DateOf(start.In(e.cfg.Location))
	candidates := e.parser.Parse(raw.Texts(), today)
	overall := Aggregate(raw.Confidence, candidates.Confidences()...)
	res := Assemble(raw, candidates, overall, e.cfg.ReviewThreshold)

	e.logger.Debug("extracted receipt fields",
		"lines", len(raw.Lines),
		"ocr_confidence", raw.Confidence,
		"merchant_found", candidates.Merchant.Found(),
		"amount_found", candidates.Amount.Found(),
		"date_found", candidates.Date.Found(),
		"confidence", overall,
		"needs_review", res.NeedsReview,
		"duration_ms", e.clock.Now().Sub(start).Milliseconds(),
	)
	return &res, nil
}

type recognition struct {
	raw RawRecognition
	err error
}

// recognize calls the recognizer under the concurrency limit. The timeout
// starts once a slot is held, so queued requests are bounded only by ctx.
// The caller is released at the deadline even if the recognizer ignores ctx,
// but the slot stays taken until the recognizer actually returns.
func (e *Engine) recognize(ctx context.Context, img NormalizedImage) (RawRecognition, error) {
	if err := e.slots.Acquire(ctx, 1); err != nil {
		return RawRecognition{}, recognitionUnavailable(fmt.Errorf("waiting for recognizer: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RecognitionTimeout)
	defer cancel()

	done := make(chan recognition, 1)
	go func() {
		defer e.slots.Release(1)
		raw, err := e.recognizer.Recognize(ctx, img)
		done <- recognition{raw: raw, err: err}
	}()

	select {
	case <-ctx.Done():
		return RawRecognition{}, recognitionUnavailable(ctx.Err())
	case r := <-done:
		if r.err != nil {
			return RawRecognition{}, recognitionUnavailable(r.err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return RawRecognition{}, recognitionUnavailable(ctxErr)
		}
		return CleanRecognition(r.raw), nil
	}
}
