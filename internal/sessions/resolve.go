// Package sessions maps inbound messages onto stable conversation sessions.
package sessions

import (
	"fmt"

	"github.com/haasonsaas/concierge/pkg/models"
)

// Resolve returns the session key for an inbound message. A message that
// already carries a session ID keeps it; otherwise the key derives from the
// provider and sender so the same counterparty always lands in the same
// session.
//
// Resolve is pure. Equal inputs always yield equal keys.
func Resolve(msg *models.InboundMessage) string {
	if msg == nil {
		return ""
	}
	if msg.SessionID != "" {
		return msg.SessionID
	}
	return fmt.Sprintf("%s:%s", msg.Provider, msg.From)
}
