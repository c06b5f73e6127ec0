// Package record accumulates validated fields into a TransactionRecord.
package record

import (
	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/dvloznov/finance-bot/internal/validation"
)

// Builder collects the fields of one record. It is a value: Supply returns
// an updated copy and never changes the receiver, so callers can keep an
// earlier Builder around to roll back to.
type Builder struct {
	kind   domain.Kind
	values map[domain.Field]validation.Value
}

// Start returns an empty builder for kind.
func Start(kind domain.Kind) Builder {
	return Builder{kind: kind}
}

// Kind returns the kind of record being built.
func (b Builder) Kind() domain.Kind { return b.kind }

// Supply returns a copy of b with field set to v.
func (b Builder) Supply(field domain.Field, v validation.Value) Builder {
	values := make(map[domain.Field]validation.Value, len(b.values)+1)
	for f, existing := range b.values {
		values[f] = existing
	}
	v.Field = field
	values[field] = v
	return Builder{kind: b.kind, values: values}
}

// WithPhoto returns a copy of b carrying the given file storage reference.
func (b Builder) WithPhoto(ref string) Builder {
	return b.Supply(domain.FieldPhoto, validation.Value{Text: ref})
}

// Has reports whether field has been supplied.
func (b Builder) Has(field domain.Field) bool {
	_, ok := b.values[field]
	return ok
}

// Get returns the value supplied for field.
func (b Builder) Get(field domain.Field) (validation.Value, bool) {
	v, ok := b.values[field]
	return v, ok
}

// NextField returns the first required field that is still unset together
// with its index in the collection order. ok is false when the builder is complete.
func (b Builder) NextField() (domain.Field, int, bool) {
	for i, f := range domain.RequiredFields(b.kind) {
		if !b.Has(f) {
			return f, i, true
		}
	}
	return "", -1, false
}

// IsComplete reports whether every required field has been supplied.
func (b Builder) IsComplete() bool {
	_, _, pending := b.NextField()
	return !pending
}

// Collected returns the supplied required fields in collection order.
func (b Builder) Collected() []validation.Value {
	var out []validation.Value
	for _, f := range domain.RequiredFields(b.kind) {
		if v, ok := b.values[f]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Warnings returns the non-fatal remarks attached to supplied values.
func (b Builder) Warnings() []string {
	var out []string
	for _, f := range domain.RequiredFields(b.kind) {
		if v, ok := b.values[f]; ok && v.Warning != "" {
			out = append(out, v.Warning)
		}
	}
	return out
}

// Finalize builds the record. It fails with *domain.IncompleteError when a
// required field is unset. An unset date stays the zero time; callers supply
// the default date through the validator.
func (b Builder) Finalize() (domain.TransactionRecord, error) {
	var missing []domain.Field
	for _, f := range domain.RequiredFields(b.kind) {
		if !b.Has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return domain.TransactionRecord{}, &domain.IncompleteError{Kind: b.kind, Missing: missing}
	}

	rec := domain.TransactionRecord{
		Kind:         b.kind,
		Category:     b.values[domain.FieldCategory].Category,
		Amount:       b.values[domain.FieldAmount].Amount,
		Date:         b.values[domain.FieldDate].Date,
		Note:         b.values[domain.FieldNote].Text,
		Counterparty: b.values[domain.FieldCounterparty].Text,
		PhotoRef:     b.values[domain.FieldPhoto].Text,
	}
	if _, ok := b.values[domain.FieldCounterparty]; !ok {
		rec.Counterparty = domain.NoneProvided
	}
	return rec, nil
}
