// Package webhook holds the marketplace webhook domain: senders, the event
// taxonomy, the per-sender alias tables, the canonical envelope, and the
// WebhookEvent aggregate with its status state machine.
//
// Everything in this package is pure. Persistence, transport, and signature
// schemes live in the infrastructure layer behind the ports declared here.
package webhook
