// Package relay produces signed synthetic marketplace deliveries and sends
// them to a running gateway. It backs the relay command used for smoke
// tests and load runs against staging.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// ErrUnsupportedSender is returned for senders whose wire format the
// generator cannot produce.
var ErrUnsupportedSender = errors.New("relay: sender not supported")

// envelope describes where a sender puts the event name and the data.
type envelope struct {
	eventField string
	dataField  string
}

var envelopes = map[webhook.Sender]envelope{
	webhook.SenderTrendyol:    {eventField: "eventType", dataField: "data"},
	webhook.SenderN11:         {eventField: "eventType", dataField: "data"},
	webhook.SenderHepsiburada: {eventField: "eventType", dataField: "data"},
	webhook.SenderOzon:        {eventField: "event_type", dataField: "data"},
	webhook.SenderPazarama:    {eventField: "event_type", dataField: "data"},
	webhook.SenderAmazon:      {eventField: "notificationType", dataField: "payload"},
}

// SupportedSenders lists the senders the generator can build bodies for.
func SupportedSenders() []webhook.Sender {
	out := make([]webhook.Sender, 0, len(envelopes))
	for _, s := range webhook.AllSenders() {
		if _, ok := envelopes[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Generator builds fake delivery bodies. It is not safe for concurrent use.
type Generator struct {
	faker *gofakeit.Faker
	now   func() time.Time
}

// NewGenerator creates a generator. A zero seed picks a random one.
func NewGenerator(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed), now: time.Now}
}

// Payload returns a JSON body announcing eventType in sender's layout. The
// data object uses canonical keys so every layout accepts it unchanged.
func (g *Generator) Payload(sender webhook.Sender, eventType webhook.EventType) ([]byte, error) {
	env, ok := envelopes[sender]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSender, sender)
	}
	body := map[string]any{
		env.eventField: string(eventType),
		"timestamp":    g.now().UTC().Format(time.RFC3339),
		env.dataField:  g.data(eventType),
	}
	return json.Marshal(body)
}

// data fills the fields handlers read for the event's family.
func (g *Generator) data(eventType webhook.EventType) map[string]any {
	f := g.faker
	family, _, _ := strings.Cut(string(eventType), ".")
	switch family {
	case "order":
		lines := make([]map[string]any, f.Number(1, 4))
		total := 0.0
		for i := range lines {
			qty := f.Number(1, 5)
			price := f.Price(10, 500)
			total += float64(qty) * price
			lines[i] = map[string]any{
				webhook.KeySKU:      g.sku(),
				webhook.KeyQuantity: qty,
				webhook.KeyPrice:    price,
			}
		}
		return map[string]any{
			webhook.KeyOrderNumber:  f.DigitN(10),
			webhook.KeyStatus:       f.RandomString([]string{"Created", "Picking", "Shipped", "Delivered"}),
			webhook.KeyLines:        lines,
			webhook.KeyTotalAmount:  total,
			webhook.KeyCurrency:     "TRY",
			webhook.KeyCustomerName: f.Name(),
		}
	case "product":
		return map[string]any{
			webhook.KeySKU:   g.sku(),
			"name":           f.ProductName(),
			webhook.KeyPrice: f.Price(10, 500),
		}
	case "inventory":
		return map[string]any{
			webhook.KeySKU:      g.sku(),
			webhook.KeyQuantity: f.Number(0, 250),
		}
	case "price":
		return map[string]any{
			webhook.KeySKU:      g.sku(),
			webhook.KeyPrice:    f.Price(10, 500),
			webhook.KeyCurrency: "TRY",
		}
	case "customer":
		return map[string]any{
			"id":                    f.UUID(),
			webhook.KeyCustomerName: f.Name(),
			webhook.KeyMessage:      f.Sentence(12),
		}
	default:
		return map[string]any{
			"id":               f.UUID(),
			webhook.KeyMessage: f.Sentence(8),
		}
	}
}

func (g *Generator) sku() string {
	return "SKU-" + strings.ToUpper(g.faker.LetterN(3)) + "-" + g.faker.DigitN(5)
}
