package item

import (
	"fmt"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/benaskins/secframe/internal/native"
)

// Attributes are the stored attributes of one item.
type Attributes map[native.Key]native.Value

func (a Attributes) String(key native.Key) (string, bool) {
	s, ok := a[key].(string)
	return s, ok
}

func (a Attributes) Bytes(key native.Key) ([]byte, bool) {
	switch v := a[key].(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	}
	return nil, false
}

func (a Attributes) Int(key native.Key) (int64, bool) {
	switch v := a[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

func (a Attributes) Bool(key native.Key) (bool, bool) {
	b, ok := a[key].(bool)
	return b, ok
}

func (a Attributes) Time(key native.Key) (time.Time, bool) {
	return native.Timestamp(a[key])
}

// Simplify renders every attribute as text for display. Byte values are
// decoded as UTF-8 with invalid sequences replaced by U+FFFD.
func (a Attributes) Simplify() map[string]string {
	out := make(map[string]string, len(a))
	for k, v := range a {
		out[string(k)] = display(v)
	}
	return out
}

func display(v native.Value) string {
	switch v := v.(type) {
	case []byte:
		return lossyUTF8(v)
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func lossyUTF8(b []byte) string {
	t := transform.Chain(unicode.UTF8.NewDecoder(), norm.NFC)
	s, _, err := transform.Bytes(t, b)
	if err != nil {
		return string([]rune(string(b)))
	}
	return string(s)
}
