// Package generic normalizes the pre-normalized JSON shape used by bridge
// channels (X, email, calendar) that post through an internal relay rather
// than a public webhook protocol.
package generic

import (
	"encoding/json"

	"github.com/haasonsaas/concierge/internal/channels"
	"github.com/haasonsaas/concierge/pkg/models"
)

type payload struct {
	Provider   string `json:"provider"`
	ExternalID string `json:"external_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Text       string `json:"text"`
	SessionID  string `json:"session_id"`
}

// Normalizer accepts the relay shape for a single provider.
type Normalizer struct {
	provider models.Provider
}

// NewNormalizer creates a normalizer bound to one bridge provider.
func NewNormalizer(provider models.Provider) *Normalizer {
	return &Normalizer{provider: provider}
}

func (n *Normalizer) Provider() models.Provider { return n.provider }

// Normalize decodes the relay payload. A payload naming a different provider
// is rejected; an empty text returns ErrNoMessage.
func (n *Normalizer) Normalize(body []byte) (*models.InboundMessage, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &channels.ParseError{Provider: n.provider, Err: err}
	}
	if p.Provider != "" && p.Provider != string(n.provider) {
		return nil, &channels.ParseError{Provider: n.provider, Err: errProviderMismatch(p.Provider)}
	}
	if p.Text == "" {
		return nil, channels.ErrNoMessage
	}
	return &models.InboundMessage{
		Provider:   n.provider,
		ExternalID: p.ExternalID,
		From:       p.From,
		To:         p.To,
		Text:       p.Text,
		Raw:        json.RawMessage(body),
		SessionID:  p.SessionID,
	}, nil
}

type errProviderMismatch string

func (e errProviderMismatch) Error() string {
	return "payload provider mismatch: " + string(e)
}
