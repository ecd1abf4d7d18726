package marketplace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// Normalizer turns a verified raw body into a canonical envelope.
type Normalizer interface {
	Normalize(raw []byte, headers http.Header, sender webhook.Sender) (webhook.CanonicalEnvelope, error)
}

// PayloadLayout describes where one sender keeps the parts of an event.
// Paths are dotted; numeric segments index into arrays.
type PayloadLayout struct {
	// EventFields hold the event name when the event header is absent.
	EventFields []string
	// DataField is the object holding the event body. Empty means the whole
	// document.
	DataField string
	// TimestampFields are tried in order. Receipt time is the fallback.
	TimestampFields []string
	// ExternalIDFields are canonical data keys, the first present wins.
	ExternalIDFields []string
	// FieldAliases rename sender keys to canonical keys at every depth.
	FieldAliases map[string]string
	// Promote copies values from document paths to top-level canonical keys
	// that are still unset after renaming.
	Promote map[string][]string
}

// NormalizerOption configures the shared normalizer core.
type NormalizerOption func(*normalizerCore)

// WithNormalizerClock injects the receipt-time fallback clock.
func WithNormalizerClock(now func() time.Time) NormalizerOption {
	return func(c *normalizerCore) {
		if now != nil {
			c.now = now
		}
	}
}

type normalizerCore struct {
	layouts map[webhook.Sender]PayloadLayout
	aliases *webhook.AliasRegistry
	creds   Credentials
	now     func() time.Time
}

func newCore(layouts map[webhook.Sender]PayloadLayout, aliases *webhook.AliasRegistry, creds Credentials, opts []NormalizerOption) normalizerCore {
	c := normalizerCore{
		layouts: layouts,
		aliases: aliases,
		creds:   creds,
		now:     time.Now,
	}
	if c.aliases == nil {
		c.aliases = webhook.NewAliasRegistry()
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c *normalizerCore) layout(sender webhook.Sender) (PayloadLayout, error) {
	layout, ok := c.layouts[sender]
	if !ok {
		return PayloadLayout{}, fmt.Errorf("%w: no payload layout for %s", webhook.ErrSenderNotSupported, sender)
	}
	return layout, nil
}

// build assembles the envelope from a decoded document. rootName is the
// XML root element, empty for JSON.
func (c *normalizerCore) build(doc map[string]any, rootName string, headers http.Header, sender webhook.Sender, layout PayloadLayout) (webhook.CanonicalEnvelope, error) {
	rawName := ""
	if cred, ok := c.creds.For(sender); ok && headers != nil {
		rawName = strings.TrimSpace(headers.Get(cred.EventHeader))
	}
	if rawName == "" {
		rawName = firstString(doc, layout.EventFields)
	}
	if rawName == "" {
		rawName = rootName
	}
	if rawName == "" {
		return webhook.CanonicalEnvelope{}, fmt.Errorf("%w: event name missing", webhook.ErrInvalidPayload)
	}

	eventType, _ := c.aliases.For(sender).Resolve(rawName)
	if eventType == "" {
		return webhook.CanonicalEnvelope{}, fmt.Errorf("%w: %q", webhook.ErrUnknownEventType, rawName)
	}

	var data map[string]any
	if layout.DataField != "" {
		if body, ok := lookupPath(doc, layout.DataField).(map[string]any); ok {
			data = deepCopyMap(body)
		}
	}
	if data == nil {
		data = deepCopyMap(doc)
	}
	renameKeys(data, layout.FieldAliases)
	for key, paths := range layout.Promote {
		if _, set := data[key]; set {
			continue
		}
		for _, p := range paths {
			if v := lookupPath(doc, p); v != nil {
				data[key] = v
				break
			}
		}
	}

	ts, ok := c.timestamp(doc, layout.TimestampFields)
	if !ok {
		ts = c.now()
	}

	canonical := webhook.CanonicalData(data)
	return webhook.CanonicalEnvelope{
		Sender:       sender,
		EventType:    eventType,
		RawEventName: rawName,
		ExternalID:   canonical.FirstString(layout.ExternalIDFields...),
		Timestamp:    ts.UTC(),
		Data:         canonical,
	}, nil
}

func (c *normalizerCore) timestamp(doc map[string]any, fields []string) (time.Time, bool) {
	for _, f := range fields {
		switch v := lookupPath(doc, f).(type) {
		case string:
			if ts, ok := ParseTimestamp(v); ok {
				return ts, true
			}
			// Date-time without zone, as some marketplaces send it.
			if ts, err := time.Parse("2006-01-02T15:04:05", strings.TrimSpace(v)); err == nil {
				return ts, true
			}
		case json.Number:
			if ts, ok := ParseTimestamp(v.String()); ok {
				return ts, true
			}
		case float64:
			if ts, ok := fromUnix(int64(v)); ok {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// =============================================================================
// JSON
// =============================================================================

// JSONNormalizer normalizes JSON bodies.
type JSONNormalizer struct {
	normalizerCore
}

// NewJSONNormalizer creates a normalizer for the given sender layouts.
func NewJSONNormalizer(layouts map[webhook.Sender]PayloadLayout, aliases *webhook.AliasRegistry, creds Credentials, opts ...NormalizerOption) *JSONNormalizer {
	return &JSONNormalizer{normalizerCore: newCore(layouts, aliases, creds, opts)}
}

// Normalize decodes raw as a JSON object and builds the envelope.
func (n *JSONNormalizer) Normalize(raw []byte, headers http.Header, sender webhook.Sender) (webhook.CanonicalEnvelope, error) {
	layout, err := n.layout(sender)
	if err != nil {
		return webhook.CanonicalEnvelope{}, err
	}
	doc, err := decodeObject(raw)
	if err != nil {
		return webhook.CanonicalEnvelope{}, fmt.Errorf("%w: %v", webhook.ErrInvalidPayload, err)
	}
	if doc == nil {
		return webhook.CanonicalEnvelope{}, fmt.Errorf("%w: body is not a JSON object", webhook.ErrInvalidPayload)
	}
	return n.build(doc, "", headers, sender, layout)
}

// =============================================================================
// Document helpers
// =============================================================================

// decodeObject decodes a JSON object keeping numbers as json.Number, so
// numeric order ids past 2^53 keep every digit. Trailing data is refused.
func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after the JSON object")
	}
	return doc, nil
}

func lookupPath(v any, path string) any {
	if path == "" {
		return nil
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
	}
	return cur
}

func firstString(doc map[string]any, paths []string) string {
	for _, p := range paths {
		if s, ok := lookupPath(doc, p).(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

// renameKeys applies aliases in place at every depth. A canonical key that
// is already present is never overwritten.
func renameKeys(v any, aliases map[string]string) {
	if len(aliases) == 0 {
		return
	}
	switch node := v.(type) {
	case map[string]any:
		for from, to := range aliases {
			val, ok := node[from]
			if !ok {
				continue
			}
			if _, taken := node[to]; !taken {
				node[to] = val
			}
			delete(node, from)
		}
		for _, child := range node {
			renameKeys(child, aliases)
		}
	case []any:
		for _, child := range node {
			renameKeys(child, aliases)
		}
	}
}
