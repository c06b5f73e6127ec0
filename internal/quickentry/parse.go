package quickentry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-bot/internal/domain"
)

// ParseResponse maps the model's JSON answer to a record kind and the
// positional arguments of that kind's command: an optional leading date,
// then the fields in collection order with "-" for empty free text.
func ParseResponse(raw string) (domain.Kind, []string, error) {
	clean := cleanModelJSON(raw)

	dec := json.NewDecoder(bytes.NewReader([]byte(clean)))
	dec.UseNumber()
	var out map[string]interface{}
	if err := dec.Decode(&out); err != nil {
		return 0, nil, fmt.Errorf("ParseResponse: unmarshal JSON: %w\nraw response: %s", err, raw)
	}

	rawKind, err := getOptionalStringField(out, "kind")
	if err != nil {
		return 0, nil, fmt.Errorf("ParseResponse: %w", err)
	}
	if rawKind == nil {
		return 0, nil, ErrNoRecord
	}
	kind, err := domain.ParseKind(*rawKind)
	if err != nil {
		return 0, nil, fmt.Errorf("ParseResponse: %w", err)
	}

	var args []string
	date, err := getOptionalStringField(out, "date")
	if err != nil {
		return 0, nil, fmt.Errorf("ParseResponse: %w", err)
	}
	if date != nil {
		args = append(args, *date)
	}

	for _, field := range domain.RequiredFields(kind) {
		var value string
		switch field {
		case domain.FieldAmount:
			value, err = getAmountField(out, string(field))
		default:
			var v *string
			v, err = getOptionalStringField(out, string(field))
			if v != nil {
				value = *v
			}
		}
		if err != nil {
			return 0, nil, fmt.Errorf("ParseResponse: %w", err)
		}

		if value == "" {
			if !field.IsFreeText() {
				// Stop here so the session asks for this field.
				break
			}
			value = "-"
		}
		args = append(args, value)
	}
	return kind, args, nil
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want string or null", key, v)
	}
}

func getAmountField(m map[string]interface{}, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	switch val := v.(type) {
	case json.Number:
		return val.String(), nil
	case string:
		return strings.TrimSpace(val), nil
	default:
		return "", fmt.Errorf("field %q has type %T, want number", key, v)
	}
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// ```json ... ``` wrappers
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
