// Package whatsapp normalizes WhatsApp Cloud API webhook payloads.
package whatsapp

import (
	"encoding/json"
	"net/url"

	"github.com/haasonsaas/concierge/internal/channels"
	"github.com/haasonsaas/concierge/pkg/models"
)

// webhookPayload mirrors the Cloud API delivery envelope. Only the fields the
// normalizer reads are declared.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Normalizer converts Cloud API webhooks into inbound messages and answers
// the registration challenge handshake.
type Normalizer struct {
	verifyToken string
}

// NewNormalizer creates a normalizer. verifyToken is the value configured in
// the Meta app dashboard; empty disables challenge verification.
func NewNormalizer(verifyToken string) *Normalizer {
	return &Normalizer{verifyToken: verifyToken}
}

func (n *Normalizer) Provider() models.Provider { return models.ProviderWhatsApp }

// Normalize extracts the first text message from the delivery. Status-only
// deliveries (sent/read receipts) return ErrNoMessage.
func (n *Normalizer) Normalize(body []byte) (*models.InboundMessage, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &channels.ParseError{Provider: models.ProviderWhatsApp, Err: err}
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.Type != "" && msg.Type != "text" {
					continue
				}
				if msg.Text.Body == "" {
					continue
				}
				return &models.InboundMessage{
					Provider:   models.ProviderWhatsApp,
					ExternalID: msg.ID,
					From:       msg.From,
					To:         change.Value.Metadata.PhoneNumberID,
					Text:       msg.Text.Body,
					Raw:        json.RawMessage(body),
				}, nil
			}
		}
	}
	return nil, channels.ErrNoMessage
}

// VerifyChallenge handles the hub.challenge GET handshake Meta sends when the
// webhook URL is registered.
func (n *Normalizer) VerifyChallenge(query url.Values) (string, error) {
	if query.Get("hub.mode") != "subscribe" || query.Get("hub.verify_token") != n.verifyToken {
		return "", channels.ErrTokenMismatch
	}
	return query.Get("hub.challenge"), nil
}
