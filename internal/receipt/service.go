package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

// Extractor turns an uploaded image into an extraction result
type Extractor interface {
	Extract(ctx context.Context, u extraction.Upload) (*extraction.ExtractionResult, error)
	Config() extraction.Config
}

// IDGenerator generates unique IDs for drafts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles draft operations
type Service struct {
	db          DB
	extractor   Extractor
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, extractor Extractor, storage Storage) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		idGenerator: &uuidGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor Extractor, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// ExtractionConfig returns the configuration of the underlying engine
func (s *Service) ExtractionConfig() extraction.Config {
	return s.extractor.Config()
}

func (s *Service) today() civil.Date {
	loc := s.extractor.Config().Location
	if loc == nil {
		loc = time.Local
	}
	return civil.DateOf(s.timeSource.Now().In(loc))
}

// ScanReceipt extracts the fields of an uploaded receipt and stores the
// result as a pending draft together with the image.
func (s *Service) ScanReceipt(ctx context.Context, filename string, data []byte, contentType string) (*Draft, error) {
	result, err := s.extractor.Extract(ctx, extraction.Upload{Data: data, ContentType: contentType})
	if err != nil {
		slog.Error("Failed to extract receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("extracting receipt: %w", err)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	key, err := s.storage.Save(id, filename, data)
	if err != nil {
		return nil, fmt.Errorf("saving image: %w", err)
	}

	draft := &Draft{
		ID:          id,
		Filename:    key,
		ContentType: contentType,
		Result:      *result,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveDraft(draft); err != nil {
		// Clean up the image if the draft cannot be stored
		if delErr := s.storage.Delete(key); delErr != nil {
			slog.Warn("Failed to delete image", "filename", key, "error", delErr)
		}
		return nil, fmt.Errorf("saving draft to database: %w", err)
	}

	slog.Info("Stored receipt draft",
		"id", id,
		"confidence", result.Confidence,
		"needs_review", result.NeedsReview,
	)
	return draft, nil
}

// GetDraft retrieves a draft by ID
func (s *Service) GetDraft(id string) (*Draft, error) {
	draft, err := s.db.GetDraft(id)
	if err != nil {
		return nil, fmt.Errorf("getting draft: %w", err)
	}
	return draft, nil
}

// ListDrafts returns drafts newest first. An empty status lists every draft.
func (s *Service) ListDrafts(status Status) ([]*Draft, error) {
	drafts, err := s.db.ListDrafts()
	if err != nil {
		return nil, fmt.Errorf("listing drafts: %w", err)
	}

	filtered := make([]*Draft, 0, len(drafts))
	for _, d := range drafts {
		if status == "" || d.Status == status {
			filtered = append(filtered, d)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if !filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		}
		return filtered[i].ID < filtered[j].ID
	})
	return filtered, nil
}

// DeleteDraft removes a draft and its image
func (s *Service) DeleteDraft(id string) error {
	draft, err := s.db.GetDraft(id)
	if err != nil {
		return fmt.Errorf("getting draft for deletion: %w", err)
	}

	// Log error but continue with database deletion
	if err := s.storage.Delete(draft.Filename); err != nil {
		slog.Warn("Failed to delete image", "filename", draft.Filename, "error", err)
	}

	if err := s.db.DeleteDraft(id); err != nil {
		return fmt.Errorf("deleting draft from database: %w", err)
	}
	return nil
}

// GetDraftImage retrieves the uploaded image of a draft
func (s *Service) GetDraftImage(id string) ([]byte, string, error) {
	draft, err := s.db.GetDraft(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting draft: %w", err)
	}

	data, err := s.storage.Get(draft.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting draft image: %w", err)
	}

	return data, draft.ContentType, nil
}

// PrefillDraft returns the editable expense suggested by a draft
func (s *Service) PrefillDraft(id string) (*Expense, error) {
	draft, err := s.db.GetDraft(id)
	if err != nil {
		return nil, fmt.Errorf("getting draft: %w", err)
	}
	if draft.Expense != nil {
		exp := *draft.Expense
		return &exp, nil
	}
	exp := Prefill(draft.Result, s.today())
	return &exp, nil
}

// ConfirmDraft validates the corrected expense and marks the draft confirmed
func (s *Service) ConfirmDraft(id string, expense Expense) (*Draft, error) {
	draft, err := s.db.GetDraft(id)
	if err != nil {
		return nil, fmt.Errorf("getting draft: %w", err)
	}
	if draft.Status == StatusConfirmed {
		return nil, fmt.Errorf("%w: %s", ErrDraftConfirmed, id)
	}

	expense = expense.normalized()
	if err := expense.Validate(s.today()); err != nil {
		return nil, err
	}

	draft.Expense = &expense
	draft.Status = StatusConfirmed
	draft.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveDraft(draft); err != nil {
		return nil, fmt.Errorf("saving draft: %w", err)
	}
	return draft, nil
}

// ListExpenses returns the confirmed expenses ordered by date, oldest first
func (s *Service) ListExpenses() ([]*Draft, error) {
	confirmed, err := s.ListDrafts(StatusConfirmed)
	if err != nil {
		return nil, err
	}
	drafts := confirmed[:0]
	for _, d := range confirmed {
		if d.Expense != nil {
			drafts = append(drafts, d)
		}
	}
	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].Expense.Date.Before(drafts[j].Expense.Date)
	})
	return drafts, nil
}

// isNotFound reports whether err means the draft does not exist
func isNotFound(err error) bool {
	return errors.Is(err, ErrDraftNotFound)
}
