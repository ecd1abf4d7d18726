package marketplace

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// XMLNormalizer normalizes XML notifications. The root element name is the
// event name unless the header or a layout field says otherwise. SOAP
// envelopes are unwrapped to the first element inside Body.
type XMLNormalizer struct {
	normalizerCore
}

// NewXMLNormalizer creates a normalizer for XML senders.
func NewXMLNormalizer(layouts map[webhook.Sender]PayloadLayout, aliases *webhook.AliasRegistry, creds Credentials, opts ...NormalizerOption) *XMLNormalizer {
	return &XMLNormalizer{normalizerCore: newCore(layouts, aliases, creds, opts)}
}

// Normalize parses raw as XML and builds the envelope.
func (n *XMLNormalizer) Normalize(raw []byte, headers http.Header, sender webhook.Sender) (webhook.CanonicalEnvelope, error) {
	layout, err := n.layout(sender)
	if err != nil {
		return webhook.CanonicalEnvelope{}, err
	}
	root, err := parseXML(raw)
	if err != nil {
		return webhook.CanonicalEnvelope{}, fmt.Errorf("%w: %v", webhook.ErrInvalidPayload, err)
	}
	root = unwrapSOAP(root)
	doc, ok := root.value().(map[string]any)
	if !ok {
		doc = map[string]any{}
	}
	return n.build(doc, root.name, headers, sender, layout)
}

type xmlNode struct {
	name     string
	attrs    []xml.Attr
	children []*xmlNode
	text     strings.Builder
}

// value flattens the node. Leaves become their trimmed text, elements with
// children become maps, repeated children become slices. Attributes of
// non-leaf elements are kept under "@name".
func (n *xmlNode) value() any {
	if len(n.children) == 0 {
		return strings.TrimSpace(n.text.String())
	}
	out := make(map[string]any, len(n.children)+len(n.attrs))
	for _, a := range n.attrs {
		out["@"+a.Name.Local] = a.Value
	}
	for _, child := range n.children {
		v := child.value()
		switch existing := out[child.name].(type) {
		case nil:
			out[child.name] = v
		case []any:
			out[child.name] = append(existing, v)
		default:
			out[child.name] = []any{existing, v}
		}
	}
	return out
}

func parseXML(raw []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charsetReader
	var stack []*xmlNode
	var root *xmlNode
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			node := &xmlNode{name: t.Name.Local, attrs: t.Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("multiple root elements")
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("empty document")
	}
	return root, nil
}

// charsetReader decodes documents that declare a non-UTF-8 encoding, such as
// ISO-8859-9 or windows-1254.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

func unwrapSOAP(root *xmlNode) *xmlNode {
	if root.name != "Envelope" {
		return root
	}
	for _, child := range root.children {
		if child.name == "Body" && len(child.children) > 0 {
			return child.children[0]
		}
	}
	return root
}
