package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CanonicalEnvelope is the sender-agnostic form of one inbound webhook.
type CanonicalEnvelope struct {
	Sender       Sender
	EventType    EventType
	RawEventName string
	ExternalID   string
	Timestamp    time.Time
	Data         CanonicalData
}

// CanonicalData is the normalized key/value body of an event. Values are
// the JSON-decoded forms: string, json.Number (float64 from older
// decoders), bool, nil, []any and map[string]any.
type CanonicalData map[string]any

// String returns the value at key rendered as a string. Numbers are
// formatted without exponent so order numbers survive the round trip.
func (d CanonicalData) String(key string) string {
	switch v := d[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the value at key as an int.
func (d CanonicalData) Int(key string) (int, bool) {
	switch v := d[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
		f, err := v.Float64()
		return int(f), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

// Decimal returns the value at key as a decimal amount.
func (d CanonicalData) Decimal(key string) (decimal.Decimal, bool) {
	switch v := d[key].(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case json.Number:
		n, err := decimal.NewFromString(v.String())
		return n, err == nil
	case string:
		n, err := decimal.NewFromString(strings.TrimSpace(v))
		return n, err == nil
	}
	return decimal.Zero, false
}

// Bool returns the value at key as a bool.
func (d CanonicalData) Bool(key string) bool {
	switch v := d[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// Map returns the nested object at key.
func (d CanonicalData) Map(key string) CanonicalData {
	if m, ok := d[key].(map[string]any); ok {
		return CanonicalData(m)
	}
	if m, ok := d[key].(CanonicalData); ok {
		return m
	}
	return nil
}

// Slice returns the nested objects at key, skipping non-object elements.
func (d CanonicalData) Slice(key string) []CanonicalData {
	items, ok := d[key].([]any)
	if !ok {
		return nil
	}
	out := make([]CanonicalData, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, CanonicalData(m))
		}
	}
	return out
}

// FirstString returns the first non-empty string among keys.
func (d CanonicalData) FirstString(keys ...string) string {
	for _, k := range keys {
		if v := d.String(k); v != "" {
			return v
		}
	}
	return ""
}

// Clone returns a shallow copy.
func (d CanonicalData) Clone() CanonicalData {
	out := make(CanonicalData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
