package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// DefaultCategory is assigned to bills created without a category.
	DefaultCategory = "other"

	MinCategoryLength = 2
	MaxCategoryLength = 20
)

// CategoryOption is a selectable category value with its display label.
type CategoryOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var defaultCategories = []CategoryOption{
	{Value: "utilities", Label: "Utilities"},
	{Value: "streaming", Label: "Streaming"},
	{Value: "subscriptions", Label: "Subscriptions"},
	{Value: "insurance", Label: "Insurance"},
	{Value: "credit_card", Label: "Credit Card"},
	{Value: "rent", Label: "Rent/Mortgage"},
	{Value: DefaultCategory, Label: "Other"},
}

var (
	ErrCategoryRequired     = errors.New("please enter a category name")
	ErrCategoryTooShort     = fmt.Errorf("category name must be at least %d characters", MinCategoryLength)
	ErrCategoryTooLong      = fmt.Errorf("category name must be at most %d characters", MaxCategoryLength)
	ErrCategoryExists       = errors.New("this category already exists")
	ErrCategoryInvalidChars = errors.New("category name can only contain letters, numbers, spaces, hyphens, and underscores")

	categoryPattern = regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)
	titleCaser      = cases.Title(language.English)
)

// DefaultCategories returns the fixed category set offered to every user.
func DefaultCategories() []CategoryOption {
	return append([]CategoryOption(nil), defaultCategories...)
}

// IsDefaultCategory reports whether name is one of the fixed categories.
func IsDefaultCategory(name string) bool {
	for _, c := range defaultCategories {
		if c.Value == name {
			return true
		}
	}
	return false
}

// NormalizeCategory trims and lowercases a category name.
func NormalizeCategory(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CategoryLabel returns the display label for a category value.
func CategoryLabel(value string) string {
	for _, c := range defaultCategories {
		if c.Value == value {
			return c.Label
		}
	}
	return titleCaser.String(value)
}

// ValidateCategoryName checks an already normalized name against the default
// set and the user's existing custom categories, in that order of precedence.
func ValidateCategoryName(name string, existing []string) error {
	if name == "" {
		return ErrCategoryRequired
	}
	n := utf8.RuneCountInString(name)
	if n < MinCategoryLength {
		return ErrCategoryTooShort
	}
	if n > MaxCategoryLength {
		return ErrCategoryTooLong
	}
	if IsDefaultCategory(name) {
		return fmt.Errorf("%w as a default option", ErrCategoryExists)
	}
	for _, c := range existing {
		if c == name {
			return ErrCategoryExists
		}
	}
	if !categoryPattern.MatchString(name) {
		return ErrCategoryInvalidChars
	}
	return nil
}
