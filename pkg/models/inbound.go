package models

import "encoding/json"

// Provider identifies the messaging channel an inbound message arrived on.
type Provider string

const (
	ProviderWhatsApp Provider = "whatsapp"
	ProviderTelegram Provider = "telegram"
	ProviderX        Provider = "x"
	ProviderEmail    Provider = "email"
	ProviderCalendar Provider = "calendar"
)

// InboundMessage is the canonical message extracted from a provider-specific
// webhook payload. It is immutable after creation: normalizers build it, the
// session resolver and engine consume it, and it is persisted verbatim
// (including Raw) for audit and reprocessing.
type InboundMessage struct {
	Provider   Provider        `json:"provider"`
	ExternalID string          `json:"external_id"`
	From       string          `json:"from"`
	To         string          `json:"to,omitempty"`
	Text       string          `json:"text,omitempty"`
	Raw        json.RawMessage `json:"raw"`
	SessionID  string          `json:"session_id,omitempty"`
}
