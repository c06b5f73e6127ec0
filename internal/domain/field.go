package domain

// Field names one piece of a TransactionRecord collected from the user.
type Field string

const (
	FieldCategory     Field = "category"
	FieldAmount       Field = "amount"
	FieldDate         Field = "date"
	FieldNote         Field = "note"
	FieldCounterparty Field = "counterparty"
	FieldPhoto        Field = "photo"
)

var requiredFields = map[Kind][]Field{
	KindExpense: {FieldCategory, FieldAmount, FieldNote, FieldCounterparty},
	KindIncome:  {FieldCategory, FieldAmount, FieldNote},
	KindSale:    {FieldCategory, FieldAmount, FieldCounterparty, FieldNote},
}

// RequiredFields returns the fixed collection order for a kind.
func RequiredFields(kind Kind) []Field {
	fields := requiredFields[kind]
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// IsFreeText reports whether the field accepts arbitrary text.
func (f Field) IsFreeText() bool {
	return f == FieldNote || f == FieldCounterparty
}
