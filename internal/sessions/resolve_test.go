package sessions

import (
	"testing"

	"github.com/haasonsaas/concierge/pkg/models"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		msg  *models.InboundMessage
		want string
	}{
		{
			name: "derives from provider and sender",
			msg:  &models.InboundMessage{Provider: models.ProviderTelegram, From: "123456789"},
			want: "telegram:123456789",
		},
		{
			name: "explicit session id wins",
			msg:  &models.InboundMessage{Provider: models.ProviderEmail, From: "a@example.com", SessionID: "handoff-7"},
			want: "handoff-7",
		},
		{
			name: "empty sender still keyed by provider",
			msg:  &models.InboundMessage{Provider: models.ProviderWhatsApp},
			want: "whatsapp:",
		},
		{
			name: "nil message",
			msg:  nil,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.msg); got != tt.want {
				t.Errorf("Resolve = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveDeterministic(t *testing.T) {
	msg := &models.InboundMessage{Provider: models.ProviderX, From: "@dana"}
	first := Resolve(msg)
	for i := 0; i < 10; i++ {
		if got := Resolve(msg); got != first {
			t.Fatalf("Resolve unstable: %q vs %q", got, first)
		}
	}
}
