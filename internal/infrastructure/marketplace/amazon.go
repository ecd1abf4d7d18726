package marketplace

import (
	"encoding/json"
	"fmt"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// sqsEnvelope is the Amazon SQS/SNS wrapper around a notification.
type sqsEnvelope struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	Message   string `json:"Message"`
}

// AmazonAdapter unwraps SQS envelopes. The signature and the normalizer
// both operate on the inner notification. Bodies without an envelope are
// treated as the notification itself.
type AmazonAdapter struct {
	verifier   SignatureVerifier
	normalizer Normalizer
}

// NewAmazonAdapter creates the Amazon adapter.
func NewAmazonAdapter(verifier SignatureVerifier, normalizer Normalizer) *AmazonAdapter {
	return &AmazonAdapter{verifier: verifier, normalizer: normalizer}
}

func (a *AmazonAdapter) Sender() webhook.Sender { return webhook.SenderAmazon }

func (a *AmazonAdapter) Validate(req *Request) bool {
	inner, _, err := unwrapSQS(req.Body)
	if err != nil {
		return false
	}
	return a.verifier.Verify(inner, req.Header, webhook.SenderAmazon)
}

func (a *AmazonAdapter) Process(req *Request) (webhook.CanonicalEnvelope, error) {
	inner, messageID, err := unwrapSQS(req.Body)
	if err != nil {
		return webhook.CanonicalEnvelope{}, err
	}
	env, err := a.normalizer.Normalize(inner, req.Header, webhook.SenderAmazon)
	if err != nil {
		return webhook.CanonicalEnvelope{}, err
	}
	if messageID != "" {
		env.Data["sqs_message_id"] = messageID
	}
	if env.ExternalID == "" {
		env.ExternalID = messageID
	}
	return env, nil
}

// unwrapSQS returns the inner message bytes and the SQS message id.
func unwrapSQS(body []byte) ([]byte, string, error) {
	var env sqsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, "", fmt.Errorf("%w: %v", webhook.ErrInvalidPayload, err)
	}
	if env.Message == "" {
		return body, "", nil
	}
	return []byte(env.Message), env.MessageID, nil
}
