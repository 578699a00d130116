// Package telegram normalizes Telegram Bot API webhook updates.
package telegram

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-telegram/bot/models"

	"github.com/haasonsaas/concierge/internal/channels"
	conciergemodels "github.com/haasonsaas/concierge/pkg/models"
)

// secretTokenHeader carries the secret configured via setWebhook.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Normalizer converts Bot API updates into inbound messages and checks the
// webhook secret token.
type Normalizer struct {
	secretToken string
}

// NewNormalizer creates a normalizer. secretToken matches the value passed to
// setWebhook; empty disables header authentication.
func NewNormalizer(secretToken string) *Normalizer {
	return &Normalizer{secretToken: secretToken}
}

func (n *Normalizer) Provider() conciergemodels.Provider {
	return conciergemodels.ProviderTelegram
}

// Normalize extracts the message from an update. Updates without a text
// message (edits, channel posts, callback queries) return ErrNoMessage.
func (n *Normalizer) Normalize(body []byte) (*conciergemodels.InboundMessage, error) {
	var update models.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, &channels.ParseError{Provider: conciergemodels.ProviderTelegram, Err: err}
	}
	if update.Message == nil || update.Message.Text == "" {
		return nil, channels.ErrNoMessage
	}

	msg := update.Message
	from := ""
	if msg.From != nil {
		from = strconv.FormatInt(msg.From.ID, 10)
	}
	return &conciergemodels.InboundMessage{
		Provider:   conciergemodels.ProviderTelegram,
		ExternalID: strconv.Itoa(msg.ID),
		From:       from,
		To:         strconv.FormatInt(msg.Chat.ID, 10),
		Text:       msg.Text,
		Raw:        json.RawMessage(body),
	}, nil
}

// Authenticate checks the secret token header Telegram attaches to webhook
// deliveries.
func (n *Normalizer) Authenticate(header http.Header) error {
	if n.secretToken == "" {
		return nil
	}
	if header.Get(secretTokenHeader) != n.secretToken {
		return channels.ErrTokenMismatch
	}
	return nil
}
