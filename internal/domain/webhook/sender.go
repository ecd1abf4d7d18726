package webhook

import (
	"fmt"
	"strings"
)

// Sender identifies a marketplace that pushes webhooks.
type Sender string

const (
	SenderTrendyol    Sender = "trendyol"
	SenderN11         Sender = "n11"
	SenderAmazon      Sender = "amazon"
	SenderEbay        Sender = "ebay"
	SenderHepsiburada Sender = "hepsiburada"
	SenderOzon        Sender = "ozon"
	SenderPazarama    Sender = "pazarama"
)

// AllSenders returns every supported sender in a stable order.
func AllSenders() []Sender {
	return []Sender{
		SenderTrendyol,
		SenderN11,
		SenderAmazon,
		SenderEbay,
		SenderHepsiburada,
		SenderOzon,
		SenderPazarama,
	}
}

// IsValid reports whether the sender is one of the supported marketplaces.
func (s Sender) IsValid() bool {
	switch s {
	case SenderTrendyol, SenderN11, SenderAmazon, SenderEbay,
		SenderHepsiburada, SenderOzon, SenderPazarama:
		return true
	}
	return false
}

// String returns the sender code.
func (s Sender) String() string {
	return string(s)
}

// DisplayName returns the marketplace's brand name.
func (s Sender) DisplayName() string {
	switch s {
	case SenderTrendyol:
		return "Trendyol"
	case SenderN11:
		return "N11"
	case SenderAmazon:
		return "Amazon"
	case SenderEbay:
		return "eBay"
	case SenderHepsiburada:
		return "Hepsiburada"
	case SenderOzon:
		return "Ozon"
	case SenderPazarama:
		return "Pazarama"
	}
	return string(s)
}

// HeaderPrefix is the canonical HTTP header prefix the sender uses, e.g.
// "X-Trendyol" for the X-Trendyol-Signature header.
func (s Sender) HeaderPrefix() string {
	return "X-" + s.DisplayName()
}

// ParseSender converts a path segment into a Sender.
func ParseSender(v string) (Sender, error) {
	s := Sender(strings.ToLower(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSender, v)
	}
	return s, nil
}
