package archive

import (
	"fmt"

	"github.com/modestbitboard/breadbox"
)

// FieldKind is the expected JSON type of a top-level metadata field.
type FieldKind string

const (
	KindString  FieldKind = "string"
	KindInteger FieldKind = "integer"
	KindNumber  FieldKind = "number"
	KindBoolean FieldKind = "boolean"
	KindList    FieldKind = "list"
	KindObject  FieldKind = "object"
)

// Schema maps top-level metadata field names to their expected kinds.
// It is used only for validating incoming metadata; the store itself never
// consults it. A nil Schema accepts anything.
type Schema map[string]FieldKind

// ParseSchema builds a Schema from configuration. An unknown kind name is a
// configuration error and must be rejected at startup.
func ParseSchema(fields map[string]string) (Schema, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	s := make(Schema, len(fields))
	for name, kind := range fields {
		switch FieldKind(kind) {
		case KindString, KindInteger, KindNumber, KindBoolean, KindList, KindObject:
			s[name] = FieldKind(kind)
		default:
			return nil, fmt.Errorf("schema field %q: unknown kind %q", name, kind)
		}
	}
	return s, nil
}

// Validate checks a metadata mapping against the schema: no unknown top-level
// keys, and each present value matches its declared kind. Null values are
// accepted for any field.
func (s Schema) Validate(data map[string]any) error {
	if s == nil {
		return nil
	}
	for key, value := range data {
		kind, ok := s[key]
		if !ok {
			return fmt.Errorf("%w: unknown field %q", breadbox.ErrInvalidInput, key)
		}
		if value == nil {
			continue
		}
		if !kind.matches(value) {
			return fmt.Errorf("%w: field %q: expected %s", breadbox.ErrInvalidInput, key, kind)
		}
	}
	return nil
}

func (k FieldKind) matches(value any) bool {
	switch k {
	case KindString:
		_, ok := value.(string)
		return ok
	case KindInteger:
		// encoding/json decodes all numbers to float64; accept whole values.
		switch v := value.(type) {
		case float64:
			return v == float64(int64(v))
		case int, int64:
			return true
		}
		return false
	case KindNumber:
		switch value.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case KindBoolean:
		_, ok := value.(bool)
		return ok
	case KindList:
		_, ok := value.([]any)
		return ok
	case KindObject:
		_, ok := value.(map[string]any)
		return ok
	default:
		return false
	}
}
