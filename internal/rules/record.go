package rules

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Record maps attribute names to the values a rule is evaluated against.
type Record map[string]Value

// DecodeRecord reads a flat JSON object. Numbers, strings and booleans keep
// their JSON type. A null attribute is left out of the record, as forms send
// null for blank numeric fields. Arrays and nested objects fail with
// ErrValidation.
func DecodeRecord(raw []byte) (Record, error) {
	if !gjson.ValidBytes(raw) {
		return nil, validationErrorf("record is not valid JSON")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, validationErrorf("record must be a JSON object")
	}

	rec := make(Record)
	var err error
	doc.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		switch value.Type {
		case gjson.Number:
			rec[name] = Number(value.Float())
		case gjson.String:
			rec[name] = String(value.String())
		case gjson.True, gjson.False:
			rec[name] = Bool(value.Bool())
		case gjson.Null:
		default:
			err = validationErrorf("attribute %q must be a number, string or boolean", name)
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordFromMap converts plain Go values. Integer and float types become
// numbers; json.Number is accepted. Nil values are left out.
func RecordFromMap(m map[string]any) (Record, error) {
	rec := make(Record, len(m))
	for name, raw := range m {
		if raw == nil {
			continue
		}
		v, ok := toValue(raw)
		if !ok {
			return nil, validationErrorf("attribute %q must be a number, string or boolean, got %T", name, raw)
		}
		rec[name] = v
	}
	return rec, nil
}

// Map returns the record as plain Go values.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r))
	for name, v := range r {
		out[name] = v.Interface()
	}
	return out
}

func toValue(v any) (Value, bool) {
	switch n := v.(type) {
	case string:
		return String(n), true
	case bool:
		return Bool(n), true
	case int:
		return Number(float64(n)), true
	case int32:
		return Number(float64(n)), true
	case int64:
		return Number(float64(n)), true
	case float32:
		return Number(float64(n)), true
	case float64:
		return Number(n), true
	case json.Number:
		f, err := n.Float64()
		return Number(f), err == nil
	default:
		return Value{}, false
	}
}
