package marketplace

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// DefaultReplayWindow bounds how far a signed timestamp may drift from the
// verifier's clock.
const DefaultReplayWindow = 300 * time.Second

// signaturePrefix is optionally prepended to the digest by some senders.
const signaturePrefix = "sha256="

// SignatureVerifier checks the authenticity of a raw delivery.
type SignatureVerifier interface {
	Verify(raw []byte, headers http.Header, sender webhook.Sender) bool
}

// Verifier implements HMAC-SHA256 verification with a replay window.
type Verifier struct {
	creds  Credentials
	window time.Duration
	now    func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithReplayWindow overrides DefaultReplayWindow.
func WithReplayWindow(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.window = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier creates a Verifier over the given credentials.
func NewVerifier(creds Credentials, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		creds:  creds,
		window: DefaultReplayWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify reports whether raw carries a valid signature and a fresh
// timestamp for sender. Any missing or malformed input yields false.
func (v *Verifier) Verify(raw []byte, headers http.Header, sender webhook.Sender) bool {
	cred, ok := v.creds.For(sender)
	if !ok || cred.Secret == "" {
		return false
	}

	sig := strings.TrimSpace(headers.Get(cred.SignatureHeader))
	if len(sig) >= len(signaturePrefix) && strings.EqualFold(sig[:len(signaturePrefix)], signaturePrefix) {
		sig = sig[len(signaturePrefix):]
	}
	if sig == "" {
		return false
	}
	got, ok := decodeDigest(sig)
	if !ok {
		return false
	}

	ts, ok := ParseTimestamp(headers.Get(cred.TimestampHeader))
	if !ok || !v.fresh(ts) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(cred.Secret))
	mac.Write(raw)
	return hmac.Equal(got, mac.Sum(nil))
}

// decodeDigest reads a SHA-256 digest in hex or in padded or unpadded
// base64 of either alphabet.
func decodeDigest(sig string) ([]byte, bool) {
	if len(sig) == hex.EncodedLen(sha256.Size) {
		if b, err := hex.DecodeString(sig); err == nil {
			return b, true
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(sig); err == nil && len(b) == sha256.Size {
			return b, true
		}
	}
	return nil, false
}

func (v *Verifier) fresh(ts time.Time) bool {
	drift := v.now().Sub(ts)
	if drift < 0 {
		drift = -drift
	}
	return drift <= v.window
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// unixMilliThreshold separates unix seconds from unix milliseconds. Second
// values cross it only in the year 33658.
const unixMilliThreshold = 1_000_000_000_000

// ParseTimestamp accepts unix seconds, unix milliseconds and RFC3339.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromUnix(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromUnix(int64(f))
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func fromUnix(n int64) (time.Time, bool) {
	if n <= 0 {
		return time.Time{}, false
	}
	if n >= unixMilliThreshold {
		return time.UnixMilli(n), true
	}
	return time.Unix(n, 0), true
}
