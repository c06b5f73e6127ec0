// Package validation checks and normalizes single fields typed by a chat user.
// Every function here is pure: the clock is passed in, nothing is cached.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/shopspring/decimal"
)

// Value is a validated field value. Only the member matching the field is set.
type Value struct {
	Field    domain.Field
	Category domain.Category
	Amount   decimal.Decimal
	Date     time.Time
	Text     string

	// Warning is a non-fatal remark, e.g. a zero amount.
	Warning string
}

// WarnZeroAmount is attached to amounts equal to zero.
const WarnZeroAmount = "amount is zero"

var (
	amountPattern    = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
	thousandsPattern = regexp.MustCompile(`^\d{1,3}(,\d{3})+(\.\d+)?$`)
	dateShape        = regexp.MustCompile(`^\d{4}[-/.]\d{1,2}[-/.]\d{1,2}$`)
	dateLayouts      = []string{"2006-1-2", "2006/1/2", "2006.1.2"}
	currencyPrefixes = []string{"¥", "￥", "RM", "rm", "Rm", "$"}
)

// earliestDate is the lower bound accepted for dates.
var earliestDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Validate checks raw user input for one field of a record of the given kind.
// Rejected input yields a *domain.ValidationError.
func Validate(field domain.Field, raw string, kind domain.Kind, now time.Time) (Value, error) {
	switch field {
	case domain.FieldCategory:
		c, err := ValidateCategory(raw, kind)
		return Value{Field: field, Category: c}, err
	case domain.FieldAmount:
		return ValidateAmount(raw)
	case domain.FieldDate:
		d, err := ValidateDate(raw, now)
		return Value{Field: field, Date: d}, err
	case domain.FieldNote, domain.FieldCounterparty:
		return Value{Field: field, Text: NormalizeText(raw)}, nil
	}
	return Value{}, fmt.Errorf("Validate: unsupported field %q", field)
}

// ValidateCategory matches raw against the canonical name, label or aliases
// of the kind's category set, ignoring case and surrounding whitespace.
func ValidateCategory(raw string, kind domain.Kind) (domain.Category, error) {
	norm := normalizeCategory(raw)
	if norm != "" {
		for _, info := range domain.CategorySet(kind) {
			if normalizeCategory(string(info.Name)) == norm || normalizeCategory(info.Label) == norm {
				return info.Name, nil
			}
			for _, alias := range info.Aliases {
				if normalizeCategory(alias) == norm {
					return info.Name, nil
				}
			}
		}
	}
	return "", &domain.ValidationError{Field: domain.FieldCategory, Code: domain.ErrInvalidCategory, Input: raw}
}

// ValidateAmount parses a non-negative amount with at most two decimals.
// A currency prefix and thousands separators are tolerated.
func ValidateAmount(raw string) (Value, error) {
	s := strings.TrimSpace(raw)
	for _, p := range currencyPrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(strings.TrimPrefix(s, p))
			break
		}
	}
	if thousandsPattern.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}

	invalid := &domain.ValidationError{Field: domain.FieldAmount, Code: domain.ErrInvalidAmount, Input: raw}
	if !amountPattern.MatchString(s) {
		return Value{}, invalid
	}
	amount, err := decimal.NewFromString(s)
	if err != nil || amount.IsNegative() {
		return Value{}, invalid
	}

	v := Value{Field: domain.FieldAmount, Amount: amount.Round(2)}
	if amount.IsZero() {
		v.Warning = WarnZeroAmount
	}
	return v, nil
}

// ValidateDate parses an optional calendar date. Empty input yields the
// calendar date of now. Dates before 2000 or after tomorrow are rejected.
func ValidateDate(raw string, now time.Time) (time.Time, error) {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	s := strings.TrimSpace(raw)
	if s == "" {
		return today, nil
	}

	invalid := &domain.ValidationError{Field: domain.FieldDate, Code: domain.ErrInvalidDate, Input: raw}
	for _, layout := range dateLayouts {
		d, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		if d.Year() < earliestDate.Year() || d.After(today.AddDate(0, 0, 1)) {
			return time.Time{}, invalid
		}
		return d, nil
	}
	return time.Time{}, invalid
}

// LooksLikeDate reports whether s has the shape of a supported date layout,
// regardless of whether the date is in range.
func LooksLikeDate(s string) bool {
	return dateShape.MatchString(strings.TrimSpace(s))
}

// ValidateRate reads a commission rate. "5%", "5" and "0.05" all mean five
// percent: values above one are taken as percentages.
func ValidateRate(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))

	rate, err := decimal.NewFromString(s)
	if err != nil || rate.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", domain.ErrInvalidRate, raw)
	}
	if percent || rate.GreaterThan(decimal.NewFromInt(1)) {
		rate = rate.Shift(-2)
	}
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", domain.ErrInvalidRate, raw)
	}
	return rate, nil
}

// ValidateSupplierCategory matches raw against domain.SupplierCategories by
// label or by 1-based position.
func ValidateSupplierCategory(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	for i, c := range domain.SupplierCategories {
		if strings.EqualFold(c, s) || s == strconv.Itoa(i+1) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidSupplier, raw)
}

// NormalizeText trims free text and replaces an empty value with domain.NoneProvided.
func NormalizeText(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return domain.NoneProvided
	}
	return s
}

// normalizeCategory normalizes a category name for comparison.
// Converts to uppercase and trims whitespace for case-insensitive comparison.
func normalizeCategory(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
