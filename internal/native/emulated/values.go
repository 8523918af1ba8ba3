package emulated

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/benaskins/secframe/internal/native"
)

// storedValue is the typed JSON form of one attribute value.
type storedValue struct {
	Type   string    `json:"t"`
	String string    `json:"s,omitempty"`
	Bytes  []byte    `json:"b,omitempty"`
	Int    int64     `json:"i,omitempty"`
	Bool   bool      `json:"v,omitempty"`
	Time   time.Time `json:"d,omitempty"`
}

func encodeAttrs(attrs native.Dict) (string, error) {
	out := make(map[string]storedValue, len(attrs))
	for k, v := range attrs {
		sv, err := toStored(v)
		if err != nil {
			return "", fmt.Errorf("attribute %s: %w", k, err)
		}
		out[string(k)] = sv
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeAttrs(raw string) (native.Dict, error) {
	var in map[string]storedValue
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, err
	}
	out := make(native.Dict, len(in))
	for k, sv := range in {
		out[native.Key(k)] = fromStored(sv)
	}
	return out, nil
}

func toStored(v native.Value) (storedValue, error) {
	switch v := normalize(v).(type) {
	case string:
		return storedValue{Type: "str", String: v}, nil
	case []byte:
		return storedValue{Type: "data", Bytes: v}, nil
	case int64:
		return storedValue{Type: "int", Int: v}, nil
	case bool:
		return storedValue{Type: "bool", Bool: v}, nil
	case time.Time:
		return storedValue{Type: "date", Time: v.UTC()}, nil
	default:
		return storedValue{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func fromStored(sv storedValue) native.Value {
	switch sv.Type {
	case "str":
		return sv.String
	case "data":
		if sv.Bytes == nil {
			return []byte{}
		}
		return sv.Bytes
	case "int":
		return sv.Int
	case "bool":
		return sv.Bool
	case "date":
		return sv.Time
	}
	return nil
}

// normalize folds the integer types callers may pass into int64.
func normalize(v native.Value) native.Value {
	switch v := v.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case uint32:
		return int64(v)
	case uint16:
		return int64(v)
	case uint64:
		return int64(v)
	}
	return v
}

func valuesEqual(a, b native.Value) bool {
	a, b = normalize(a), normalize(b)
	switch a := a.(type) {
	case string:
		switch b := b.(type) {
		case string:
			return a == b
		case []byte:
			return a == string(b)
		}
	case []byte:
		switch b := b.(type) {
		case []byte:
			return bytes.Equal(a, b)
		case string:
			return string(a) == b
		}
	case int64:
		b, ok := b.(int64)
		return ok && a == b
	case bool:
		b, ok := b.(bool)
		return ok && a == b
	case time.Time:
		b, ok := b.(time.Time)
		return ok && a.Equal(b)
	}
	return false
}

func isControlKey(k native.Key) bool {
	if k == native.KeyClass {
		return true
	}
	s := string(k)
	return strings.HasPrefix(s, "m_") || strings.HasPrefix(s, "r_") ||
		strings.HasPrefix(s, "v_") || strings.HasPrefix(s, "u_")
}

func boolValue(v native.Value) bool {
	switch v := normalize(v).(type) {
	case bool:
		return v
	case int64:
		return v != 0
	}
	return false
}

func stringValue(v native.Value) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}

func intValue(v native.Value) (int64, bool) {
	n, ok := normalize(v).(int64)
	return n, ok
}

// refList accepts the array shapes callers use for reference lists.
func refList(v native.Value) []native.Ref {
	switch v := v.(type) {
	case native.Ref:
		return []native.Ref{v}
	case []native.Ref:
		return v
	case []native.Value:
		out := make([]native.Ref, 0, len(v))
		for _, e := range v {
			if r, ok := e.(native.Ref); ok {
				out = append(out, r)
			}
		}
		return out
	}
	return nil
}

func copyDict(d native.Dict) native.Dict {
	out := make(native.Dict, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
