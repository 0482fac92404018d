package receipt

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

var (
	// ErrDraftNotFound is returned when no draft has the requested ID
	ErrDraftNotFound = errors.New("draft not found")
	// ErrDraftConfirmed is returned when confirming a draft twice
	ErrDraftConfirmed = errors.New("draft already confirmed")
	// ErrInvalidExpense is returned when a confirmed expense fails validation
	ErrInvalidExpense = errors.New("invalid expense")
)

// Status is the review state of a draft
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

// Draft is an extraction result waiting for, or past, human review
type Draft struct {
	ID          string                      `json:"id"`
	Filename    string                      `json:"filename"`
	ContentType string                      `json:"content_type"`
	Result      extraction.ExtractionResult `json:"result"`
	Status      Status                      `json:"status"`
	Expense     *Expense                    `json:"expense,omitempty"` // set once confirmed
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// Expense is the record a person confirms from a draft
type Expense struct {
	Merchant string          `json:"merchant"`
	Amount   decimal.Decimal `json:"amount"`
	Date     civil.Date      `json:"date"`
	Category string          `json:"category"`
	Notes    string          `json:"notes,omitempty"`
}

const (
	maxMerchantLen = 100
	maxCategoryLen = 50
	importNotes    = "Imported from receipt via OCR"
)

// Validate checks the expense against the rules of the expense store.
// today bounds the date.
func (e Expense) Validate(today civil.Date) error {
	merchant := strings.TrimSpace(e.Merchant)
	switch n := utf8.RuneCountInString(merchant); {
	case n == 0:
		return fmt.Errorf("%w: merchant is required", ErrInvalidExpense)
	case n > maxMerchantLen:
		return fmt.Errorf("%w: merchant must be at most %d characters", ErrInvalidExpense, maxMerchantLen)
	}

	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidExpense)
	}
	if !e.Amount.Equal(e.Amount.Round(2)) {
		return fmt.Errorf("%w: amount must have at most two decimal places", ErrInvalidExpense)
	}

	category := strings.TrimSpace(e.Category)
	switch n := utf8.RuneCountInString(category); {
	case n == 0:
		return fmt.Errorf("%w: category is required", ErrInvalidExpense)
	case n > maxCategoryLen:
		return fmt.Errorf("%w: category must be at most %d characters", ErrInvalidExpense, maxCategoryLen)
	}

	if !e.Date.IsValid() {
		return fmt.Errorf("%w: date is required", ErrInvalidExpense)
	}
	if e.Date.After(today) {
		return fmt.Errorf("%w: date %s is in the future", ErrInvalidExpense, e.Date)
	}
	return nil
}

// normalized returns a copy with trimmed text and a two-place amount
func (e Expense) normalized() Expense {
	e.Merchant = strings.TrimSpace(e.Merchant)
	e.Category = strings.ToLower(strings.TrimSpace(e.Category))
	e.Notes = strings.TrimSpace(e.Notes)
	e.Amount = e.Amount.Round(2)
	return e
}

// Prefill builds an editable expense from an extraction result. Missing
// fields stay empty, except the date which defaults to today.
func Prefill(res extraction.ExtractionResult, today civil.Date) Expense {
	exp := Expense{
		Date:  today,
		Notes: importNotes,
	}
	if res.Merchant != nil {
		exp.Merchant = *res.Merchant
	}
	if res.Amount != nil {
		exp.Amount = *res.Amount
	}
	if res.Date != nil {
		exp.Date = *res.Date
	}
	exp.Category = GuessCategory(exp.Merchant, strings.Join(res.RawText, "\n"))
	return exp
}

var categoryRules = []struct {
	category string
	keywords []string
	// inText also searches the receipt text, not only the merchant name
	inText bool
}{
	{"food", []string{"restaurant", "cafe", "coffee", "pizza", "burger", "food", "dine"}, true},
	{"groceries", []string{"market", "grocery", "supermarket", "whole foods", "trader"}, false},
	{"transport", []string{"gas", "fuel", "uber", "lyft", "taxi", "parking"}, false},
	{"entertainment", []string{"cinema", "theater", "movie", "game", "spotify", "netflix"}, false},
	{"shopping", []string{"amazon", "store", "shop", "mart", "target", "walmart"}, false},
}

// GuessCategory picks a spending category from keywords in the merchant
// name, and for food also in the receipt text. Rules are checked in order.
func GuessCategory(merchant, text string) string {
	merchant = strings.ToLower(merchant)
	text = strings.ToLower(text)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(merchant, kw) || (rule.inText && strings.Contains(text, kw)) {
				return rule.category
			}
		}
	}
	return "other"
}
