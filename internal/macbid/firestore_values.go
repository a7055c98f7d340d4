package macbid

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DecodeValue converts a firestore typed value (ex. {"integerValue": "12"})
// into a plain go value: int64, float64, string, bool, time.Time, nil,
// map[string]any or []any.
func DecodeValue(raw json.RawMessage) (any, error) {
	var typed map[string]json.RawMessage
	err := json.Unmarshal(raw, &typed)
	if err != nil {
		return nil, fmt.Errorf("firestore value: %w", err)
	}

	for kind, value := range typed {
		switch kind {
		case "nullValue":
			return nil, nil
		case "booleanValue":
			var b bool
			err := json.Unmarshal(value, &b)
			return b, err
		case "integerValue":
			// 64 bit integers are sent as strings
			var s string
			if json.Unmarshal(value, &s) != nil {
				s = string(value)
			}
			return strconv.ParseInt(s, 10, 64)
		case "doubleValue":
			var f float64
			err := json.Unmarshal(value, &f)
			if err != nil {
				// NaN and Infinity are sent as strings
				var s string
				if json.Unmarshal(value, &s) != nil {
					return nil, err
				}
				return strconv.ParseFloat(s, 64)
			}
			return f, nil
		case "stringValue", "referenceValue":
			var s string
			err := json.Unmarshal(value, &s)
			return s, err
		case "timestampValue":
			var s string
			err := json.Unmarshal(value, &s)
			if err != nil {
				return nil, err
			}
			return time.Parse(time.RFC3339Nano, s)
		case "mapValue":
			var m struct {
				Fields map[string]json.RawMessage `json:"fields"`
			}
			err := json.Unmarshal(value, &m)
			if err != nil {
				return nil, err
			}
			return DecodeFields(m.Fields)
		case "arrayValue":
			var a struct {
				Values []json.RawMessage `json:"values"`
			}
			err := json.Unmarshal(value, &a)
			if err != nil {
				return nil, err
			}
			out := make([]any, len(a.Values))
			for i, v := range a.Values {
				out[i], err = DecodeValue(v)
				if err != nil {
					return nil, err
				}
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("firestore value: unsupported %s", string(raw))
}

// DecodeFields decodes the `fields` object of a document or map value.
func DecodeFields(fields map[string]json.RawMessage) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for name, raw := range fields {
		value, err := DecodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		out[name] = value
	}
	return out, nil
}
