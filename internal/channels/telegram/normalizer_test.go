package telegram

import (
	"errors"
	"net/http"
	"testing"

	"github.com/haasonsaas/concierge/internal/channels"
	conciergemodels "github.com/haasonsaas/concierge/pkg/models"
)

const textUpdate = `{
	"update_id": 700000001,
	"message": {
		"message_id": 42,
		"from": {"id": 123456789, "is_bot": false, "first_name": "Dana"},
		"chat": {"id": 123456789, "type": "private"},
		"date": 1717200000,
		"text": "where is my order?"
	}
}`

const editUpdate = `{
	"update_id": 700000002,
	"edited_message": {
		"message_id": 42,
		"chat": {"id": 123456789, "type": "private"},
		"date": 1717200000,
		"text": "edited"
	}
}`

func TestNormalizeUpdate(t *testing.T) {
	n := NewNormalizer("")
	msg, err := n.Normalize([]byte(textUpdate))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if msg.Provider != conciergemodels.ProviderTelegram {
		t.Errorf("Provider = %q, want telegram", msg.Provider)
	}
	if msg.ExternalID != "42" || msg.From != "123456789" || msg.To != "123456789" {
		t.Errorf("identity = {%s %s %s}, want update fields", msg.ExternalID, msg.From, msg.To)
	}
	if msg.Text != "where is my order?" {
		t.Errorf("Text = %q, want message text", msg.Text)
	}
	if string(msg.Raw) != textUpdate {
		t.Error("Raw != original body")
	}
}

func TestNormalizeNonMessageUpdate(t *testing.T) {
	n := NewNormalizer("")
	if _, err := n.Normalize([]byte(editUpdate)); !errors.Is(err, channels.ErrNoMessage) {
		t.Errorf("error = %v, want ErrNoMessage", err)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	n := NewNormalizer("")
	_, err := n.Normalize([]byte(`not json`))
	var parseErr *channels.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want ParseError", err)
	}
}

func TestAuthenticate(t *testing.T) {
	n := NewNormalizer("hunter2")

	header := http.Header{}
	header.Set("X-Telegram-Bot-Api-Secret-Token", "hunter2")
	if err := n.Authenticate(header); err != nil {
		t.Errorf("Authenticate with valid token = %v, want nil", err)
	}

	header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")
	if err := n.Authenticate(header); !errors.Is(err, channels.ErrTokenMismatch) {
		t.Errorf("Authenticate with wrong token = %v, want ErrTokenMismatch", err)
	}

	open := NewNormalizer("")
	if err := open.Authenticate(http.Header{}); err != nil {
		t.Errorf("Authenticate with no configured token = %v, want nil", err)
	}
}
