package record

import (
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/validation"
	"github.com/shopspring/decimal"
)

var today = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

func mustValidate(t *testing.T, kind domain.Kind, field domain.Field, raw string) validation.Value {
	t.Helper()
	v, err := validation.Validate(field, raw, kind, today)
	if err != nil {
		t.Fatalf("Validate(%s, %q): %v", field, raw, err)
	}
	return v
}

func TestBuilderNextFieldOrder(t *testing.T) {
	tests := []struct {
		kind   domain.Kind
		inputs map[domain.Field]string
	}{
		{
			kind: domain.KindExpense,
			inputs: map[domain.Field]string{
				domain.FieldCategory:     "食品",
				domain.FieldAmount:       "50.5",
				domain.FieldNote:         "午餐",
				domain.FieldCounterparty: "公司餐厅",
			},
		},
		{
			kind: domain.KindIncome,
			inputs: map[domain.Field]string{
				domain.FieldCategory: "薪资",
				domain.FieldAmount:   "8000",
				domain.FieldNote:     "June",
			},
		},
		{
			kind: domain.KindSale,
			inputs: map[domain.Field]string{
				domain.FieldCategory:     "公司",
				domain.FieldAmount:       "1200",
				domain.FieldCounterparty: "ACME",
				domain.FieldNote:         "INV-7",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			b := Start(tt.kind)
			for i, want := range domain.RequiredFields(tt.kind) {
				field, idx, ok := b.NextField()
				if !ok || field != want || idx != i {
					t.Fatalf("NextField() = (%s, %d, %v), want (%s, %d, true)", field, idx, ok, want, i)
				}
				if b.IsComplete() {
					t.Fatalf("IsComplete() = true before %s", want)
				}
				b = b.Supply(field, mustValidate(t, tt.kind, field, tt.inputs[field]))
			}
			if !b.IsComplete() {
				t.Fatal("IsComplete() = false after all fields")
			}
			if _, _, ok := b.NextField(); ok {
				t.Error("NextField() ok = true on complete builder")
			}
			if got := len(b.Collected()); got != len(tt.inputs) {
				t.Errorf("Collected() has %d values, want %d", got, len(tt.inputs))
			}
		})
	}
}

func TestBuilderSupplyIsPure(t *testing.T) {
	base := Start(domain.KindExpense)
	withCat := base.Supply(domain.FieldCategory, mustValidate(t, domain.KindExpense, domain.FieldCategory, "食品"))
	withAmount := withCat.Supply(domain.FieldAmount, mustValidate(t, domain.KindExpense, domain.FieldAmount, "10"))

	if base.Has(domain.FieldCategory) {
		t.Error("Supply mutated the original builder")
	}
	if withCat.Has(domain.FieldAmount) {
		t.Error("Supply mutated an intermediate builder")
	}
	if !withAmount.Has(domain.FieldCategory) || !withAmount.Has(domain.FieldAmount) {
		t.Error("latest builder lost a field")
	}

	corrected := withCat.Supply(domain.FieldCategory, mustValidate(t, domain.KindExpense, domain.FieldCategory, "交通"))
	if v, _ := withCat.Get(domain.FieldCategory); v.Category != domain.CategoryFood {
		t.Errorf("rollback builder category = %s, want Food", v.Category)
	}
	if v, _ := corrected.Get(domain.FieldCategory); v.Category != domain.CategoryTransport {
		t.Errorf("corrected builder category = %s, want Transport", v.Category)
	}
}

func TestBuilderFinalize(t *testing.T) {
	kind := domain.KindExpense
	b := Start(kind).
		Supply(domain.FieldDate, mustValidate(t, kind, domain.FieldDate, "")).
		Supply(domain.FieldCategory, mustValidate(t, kind, domain.FieldCategory, "食品")).
		Supply(domain.FieldAmount, mustValidate(t, kind, domain.FieldAmount, "50.5")).
		Supply(domain.FieldNote, mustValidate(t, kind, domain.FieldNote, "午餐")).
		Supply(domain.FieldCounterparty, mustValidate(t, kind, domain.FieldCounterparty, "公司餐厅")).
		WithPhoto("https://drive.example/receipt")

	rec, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}

	want := domain.TransactionRecord{
		Kind:         domain.KindExpense,
		Category:     domain.CategoryFood,
		Amount:       decimal.RequireFromString("50.50"),
		Date:         today,
		Note:         "午餐",
		Counterparty: "公司餐厅",
		PhotoRef:     "https://drive.example/receipt",
	}
	if !rec.Equal(want) {
		t.Errorf("Finalize() = %+v, want %+v", rec, want)
	}
}

func TestBuilderFinalizeIncome(t *testing.T) {
	kind := domain.KindIncome
	b := Start(kind).
		Supply(domain.FieldCategory, mustValidate(t, kind, domain.FieldCategory, "bonus")).
		Supply(domain.FieldAmount, mustValidate(t, kind, domain.FieldAmount, "300")).
		Supply(domain.FieldNote, mustValidate(t, kind, domain.FieldNote, ""))

	rec, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}
	if rec.Note != domain.NoneProvided || rec.Counterparty != domain.NoneProvided {
		t.Errorf("expected sentinel text, got note=%q counterparty=%q", rec.Note, rec.Counterparty)
	}
	if rec.PhotoRef != "" {
		t.Errorf("PhotoRef = %q, want empty", rec.PhotoRef)
	}
}

func TestBuilderFinalizeIncomplete(t *testing.T) {
	kind := domain.KindExpense
	b := Start(kind).
		Supply(domain.FieldCategory, mustValidate(t, kind, domain.FieldCategory, "食品"))

	_, err := b.Finalize()
	var inc *domain.IncompleteError
	if !errors.As(err, &inc) {
		t.Fatalf("Finalize() error = %v, want IncompleteError", err)
	}
	want := []domain.Field{domain.FieldAmount, domain.FieldNote, domain.FieldCounterparty}
	if len(inc.Missing) != len(want) {
		t.Fatalf("Missing = %v, want %v", inc.Missing, want)
	}
	for i := range want {
		if inc.Missing[i] != want[i] {
			t.Errorf("Missing[%d] = %s, want %s", i, inc.Missing[i], want[i])
		}
	}
}

func TestBuilderWarnings(t *testing.T) {
	kind := domain.KindExpense
	b := Start(kind).Supply(domain.FieldAmount, mustValidate(t, kind, domain.FieldAmount, "0"))
	w := b.Warnings()
	if len(w) != 1 || w[0] != validation.WarnZeroAmount {
		t.Errorf("Warnings() = %v, want [%s]", w, validation.WarnZeroAmount)
	}
}
