package conversation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-bot/internal/domain"
)

// Fixed replies.
const (
	MsgCancelled     = "Cancelled. Nothing was saved."
	MsgTimedOut      = "The previous entry timed out and was discarded. Send the command again to start over."
	MsgInternalError = "Something went wrong on our side. Please start again."
	MsgCommitFailed  = "Could not save the record right now (%s). Please try again in a moment."
	MsgPhotoAttached = "Photo attached."
)

// Option is one button of a reply menu.
type Option struct {
	Label string
	Data  string
}

// CategoryOptions returns the category set of kind as menu options.
func CategoryOptions(kind domain.Kind) []Option {
	set := domain.CategorySet(kind)
	opts := make([]Option, len(set))
	for i, info := range set {
		opts[i] = Option{Label: info.Label, Data: info.Label}
	}
	return opts
}

func prompt(kind domain.Kind, field domain.Field) string {
	switch field {
	case domain.FieldCategory:
		return fmt.Sprintf("Choose a %s category:", kind.Label())
	case domain.FieldAmount:
		return "Enter the amount, e.g. 50.5:"
	case domain.FieldDate:
		return "Enter the date as YYYY-MM-DD:"
	case domain.FieldNote:
		if kind == domain.KindSale {
			return "Enter a remark (send - to skip):"
		}
		return "Enter a note (send - to skip):"
	case domain.FieldCounterparty:
		if kind == domain.KindSale {
			return "Who is the invoice billed to? (send - to skip)"
		}
		return "Enter the merchant or supplier (send - to skip):"
	}
	return fmt.Sprintf("Enter %s:", field)
}

func validationMessage(kind domain.Kind, err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCategory):
		labels := make([]string, 0)
		for _, info := range domain.CategorySet(kind) {
			labels = append(labels, info.Label)
		}
		return fmt.Sprintf("Unknown category. Valid %s categories: %s.", kind.Label(), strings.Join(labels, ", "))
	case errors.Is(err, domain.ErrInvalidAmount):
		return "Invalid amount. Use a non-negative number with at most 2 decimals."
	case errors.Is(err, domain.ErrInvalidDate):
		return "Invalid date. Use YYYY-MM-DD between 2000-01-01 and tomorrow."
	}
	return "Invalid input."
}

func gatewayReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return "storage access denied"
	case errors.Is(err, domain.ErrTimeout):
		return "storage timed out"
	default:
		return "storage unavailable"
	}
}

// Confirmation renders the reply sent after a record was saved.
func Confirmation(rec domain.TransactionRecord, warnings []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Saved %s record:\n", rec.Kind.Label())
	fmt.Fprintf(&b, "Date: %s\n", rec.Date.Format(domain.DateLayout))
	fmt.Fprintf(&b, "Category: %s\n", domain.CategoryLabel(rec.Kind, rec.Category))
	fmt.Fprintf(&b, "Amount: %s\n", rec.Amount.StringFixed(2))
	fmt.Fprintf(&b, "Note: %s", rec.Note)
	if rec.Kind != domain.KindIncome {
		fmt.Fprintf(&b, "\nCounterparty: %s", rec.Counterparty)
	}
	if rec.PhotoRef != "" {
		fmt.Fprintf(&b, "\nReceipt: %s", rec.PhotoRef)
	}
	for _, w := range warnings {
		fmt.Fprintf(&b, "\nWarning: %s", w)
	}
	return b.String()
}
