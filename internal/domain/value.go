package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FieldType governs how a field's values are compared and rendered
type FieldType string

const (
	FieldTypeNumber   FieldType = "number"
	FieldTypeCurrency FieldType = "currency"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeText     FieldType = "text"
)

// IsNumeric returns true for types compared by magnitude
func (t FieldType) IsNumeric() bool {
	return t == FieldTypeNumber || t == FieldTypeCurrency
}

// Valid returns true if t is one of the known field types
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeNumber, FieldTypeCurrency, FieldTypeBoolean, FieldTypeText:
		return true
	}
	return false
}

// Value is a declared or observed field value. Exactly one payload member is
// meaningful, selected by Kind. A zero Value is unset.
type Value struct {
	Kind FieldType
	Num  decimal.Decimal
	Bool bool
	Text string
	Set  bool
}

// NumberValue creates a number value
func NumberValue(n float64) Value {
	return Value{Kind: FieldTypeNumber, Num: decimal.NewFromFloat(n), Set: true}
}

// CurrencyValue creates a currency value
func CurrencyValue(amount float64) Value {
	return Value{Kind: FieldTypeCurrency, Num: decimal.NewFromFloat(amount), Set: true}
}

// DecimalValue creates a number or currency value from an exact decimal
func DecimalValue(kind FieldType, d decimal.Decimal) Value {
	return Value{Kind: kind, Num: d, Set: true}
}

// BoolValue creates a boolean value
func BoolValue(b bool) Value {
	return Value{Kind: FieldTypeBoolean, Bool: b, Set: true}
}

// TextValue creates a text value
func TextValue(s string) Value {
	return Value{Kind: FieldTypeText, Text: s, Set: true}
}

// IsEmpty returns true when no usable value has been captured
func (v Value) IsEmpty() bool {
	if !v.Set {
		return true
	}
	if v.Kind == FieldTypeText {
		return strings.TrimSpace(v.Text) == ""
	}
	return false
}

// Decimal returns the numeric payload and whether the value is numeric and set
func (v Value) Decimal() (decimal.Decimal, bool) {
	if !v.Set || !v.Kind.IsNumeric() {
		return decimal.Zero, false
	}
	return v.Num, true
}

// String formats the value for logs and audit text
func (v Value) String() string {
	if !v.Set {
		return ""
	}
	switch v.Kind {
	case FieldTypeNumber:
		return v.Num.String()
	case FieldTypeCurrency:
		return v.Num.StringFixed(2)
	case FieldTypeBoolean:
		return strconv.FormatBool(v.Bool)
	case FieldTypeText:
		return v.Text
	}
	return ""
}

// ParseValue converts a loosely typed payload into a Value of the given kind.
// nil yields an unset value.
func ParseValue(kind FieldType, raw interface{}) (Value, error) {
	if raw == nil {
		return Value{Kind: kind}, nil
	}
	switch kind {
	case FieldTypeNumber, FieldTypeCurrency:
		d, err := parseDecimal(raw)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return DecimalValue(kind, d), nil
	case FieldTypeBoolean:
		b, err := parseBool(raw)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return BoolValue(b), nil
	case FieldTypeText:
		switch t := raw.(type) {
		case string:
			return TextValue(t), nil
		case fmt.Stringer:
			return TextValue(t.String()), nil
		default:
			return TextValue(fmt.Sprint(t)), nil
		}
	}
	return Value{}, fmt.Errorf("%w: unknown field type %q", ErrInvalidValue, kind)
}

func parseDecimal(raw interface{}) (decimal.Decimal, error) {
	switch n := raw.(type) {
	case decimal.Decimal:
		return n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		s := strings.TrimSpace(n)
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimPrefix(s, "$")
		if s == "" {
			return decimal.Zero, fmt.Errorf("empty numeric value")
		}
		return decimal.NewFromString(s)
	}
	return decimal.Zero, fmt.Errorf("unsupported numeric payload %T", raw)
}

func parseBool(raw interface{}) (bool, error) {
	switch b := raw.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "si", "sí", "1":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
		return false, fmt.Errorf("invalid boolean %q", b)
	}
	return false, fmt.Errorf("unsupported boolean payload %T", raw)
}

// MarshalJSON encodes the value as a bare JSON scalar
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Set {
		return []byte("null"), nil
	}
	switch v.Kind {
	case FieldTypeNumber, FieldTypeCurrency:
		return []byte(v.Num.String()), nil
	case FieldTypeBoolean:
		return json.Marshal(v.Bool)
	default:
		return json.Marshal(v.Text)
	}
}

// decodeValue decodes a bare JSON scalar written by MarshalJSON.
// The kind comes from the enclosing record.
func decodeValue(kind FieldType, data json.RawMessage) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Value{Kind: kind}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	return ParseValue(kind, raw)
}
