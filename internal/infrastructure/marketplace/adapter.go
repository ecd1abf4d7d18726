// Package marketplace adapts the delivery formats of each marketplace to the
// canonical webhook envelope: signature verification, payload decoding and
// per-sender field layouts.
package marketplace

import (
	"net/http"
	"sort"
	"time"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// Request is one inbound delivery as received over HTTP.
type Request struct {
	Sender     webhook.Sender
	Body       []byte
	Header     http.Header
	ReceivedAt time.Time
}

// Adapter verifies and normalizes the deliveries of one sender.
type Adapter interface {
	Sender() webhook.Sender
	// Validate reports whether the delivery is authentic and fresh.
	Validate(req *Request) bool
	// Process builds the canonical envelope. It must only be called after
	// Validate succeeded.
	Process(req *Request) (webhook.CanonicalEnvelope, error)
}

// signedAdapter verifies the raw body and normalizes it as is.
type signedAdapter struct {
	sender     webhook.Sender
	verifier   SignatureVerifier
	normalizer Normalizer
}

// NewSignedAdapter creates an adapter whose signature covers the whole body.
func NewSignedAdapter(sender webhook.Sender, verifier SignatureVerifier, normalizer Normalizer) Adapter {
	return &signedAdapter{sender: sender, verifier: verifier, normalizer: normalizer}
}

func (a *signedAdapter) Sender() webhook.Sender { return a.sender }

func (a *signedAdapter) Validate(req *Request) bool {
	return a.verifier.Verify(req.Body, req.Header, a.sender)
}

func (a *signedAdapter) Process(req *Request) (webhook.CanonicalEnvelope, error) {
	return a.normalizer.Normalize(req.Body, req.Header, a.sender)
}

// =============================================================================
// Registry
// =============================================================================

// Registry maps senders to adapters. Read-only after construction.
type Registry struct {
	adapters map[webhook.Sender]Adapter
}

// NewRegistry creates a registry. A later adapter for the same sender wins.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[webhook.Sender]Adapter, len(adapters))}
	for _, a := range adapters {
		if a != nil {
			r.adapters[a.Sender()] = a
		}
	}
	return r
}

// Get returns the sender's adapter.
func (r *Registry) Get(sender webhook.Sender) (Adapter, bool) {
	a, ok := r.adapters[sender]
	return a, ok
}

// Senders returns the registered senders, sorted.
func (r *Registry) Senders() []webhook.Sender {
	out := make([]webhook.Sender, 0, len(r.adapters))
	for s := range r.adapters {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RegistryOptions tunes NewDefaultRegistry.
type RegistryOptions struct {
	ReplayWindow time.Duration
	Clock        func() time.Time
}

// NewDefaultRegistry wires the adapters of every enabled sender in creds.
func NewDefaultRegistry(creds Credentials, aliases *webhook.AliasRegistry, opts RegistryOptions) *Registry {
	verifier := NewVerifier(creds, WithReplayWindow(opts.ReplayWindow), WithClock(opts.Clock))
	layouts := DefaultLayouts()
	jsonNorm := NewJSONNormalizer(layouts, aliases, creds, WithNormalizerClock(opts.Clock))
	xmlNorm := NewXMLNormalizer(layouts, aliases, creds, WithNormalizerClock(opts.Clock))

	var adapters []Adapter
	for _, sender := range webhook.AllSenders() {
		if !creds.Enabled(sender) {
			continue
		}
		switch sender {
		case webhook.SenderAmazon:
			adapters = append(adapters, NewAmazonAdapter(verifier, jsonNorm))
		case webhook.SenderEbay:
			adapters = append(adapters, NewSignedAdapter(sender, verifier, xmlNorm))
		default:
			adapters = append(adapters, NewSignedAdapter(sender, verifier, jsonNorm))
		}
	}
	return NewRegistry(adapters...)
}
