package marketplace

import (
	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// Credential is the shared secret and header layout of one sender.
type Credential struct {
	Enabled         bool
	Secret          string
	SignatureHeader string
	EventHeader     string
	TimestampHeader string
}

// DefaultCredential returns an enabled credential with the conventional
// X-<Name>-Signature, X-<Name>-Event and X-<Name>-Timestamp headers and no
// secret.
func DefaultCredential(sender webhook.Sender) Credential {
	prefix := sender.HeaderPrefix()
	return Credential{
		Enabled:         true,
		SignatureHeader: prefix + "-Signature",
		EventHeader:     prefix + "-Event",
		TimestampHeader: prefix + "-Timestamp",
	}
}

// withDefaults fills empty header names.
func (c Credential) withDefaults(sender webhook.Sender) Credential {
	def := DefaultCredential(sender)
	if c.SignatureHeader == "" {
		c.SignatureHeader = def.SignatureHeader
	}
	if c.EventHeader == "" {
		c.EventHeader = def.EventHeader
	}
	if c.TimestampHeader == "" {
		c.TimestampHeader = def.TimestampHeader
	}
	return c
}

// Credentials holds one credential per sender. It is built once at startup
// and never mutated.
type Credentials map[webhook.Sender]Credential

// For returns the sender's credential with header defaults applied.
func (c Credentials) For(sender webhook.Sender) (Credential, bool) {
	cred, ok := c[sender]
	if !ok {
		return Credential{}, false
	}
	return cred.withDefaults(sender), true
}

// Enabled reports whether the sender is configured and switched on.
func (c Credentials) Enabled(sender webhook.Sender) bool {
	cred, ok := c[sender]
	return ok && cred.Enabled
}
