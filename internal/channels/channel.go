// Package channels normalizes provider-specific webhook payloads into the
// shared inbound message shape. Each provider ships a Normalizer; optional
// interfaces add webhook verification where the provider protocol requires it.
package channels

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/haasonsaas/concierge/pkg/models"
)

// ErrNoMessage signals a structurally valid payload that carries nothing to
// process, such as a delivery receipt or an edited-message event. Callers
// acknowledge and drop these.
var ErrNoMessage = errors.New("payload contains no message")

// ErrTokenMismatch signals a webhook verification failure.
var ErrTokenMismatch = errors.New("verification token mismatch")

// ParseError reports a payload the normalizer could not decode.
type ParseError struct {
	Provider models.Provider
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s payload: %v", e.Provider, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Normalizer converts one provider's webhook body into an InboundMessage.
//
// Normalize must be pure: no I/O, no mutation of shared state, and identical
// output for identical input. The raw body is preserved verbatim on the
// returned message.
type Normalizer interface {
	// Provider identifies the channel this normalizer handles.
	Provider() models.Provider

	// Normalize decodes body into an inbound message. It returns ErrNoMessage
	// for payloads with nothing to process and a *ParseError for bodies it
	// cannot decode.
	Normalize(body []byte) (*models.InboundMessage, error)
}

// ChallengeVerifier is implemented by normalizers whose provider performs a
// GET challenge handshake when the webhook is registered.
type ChallengeVerifier interface {
	// VerifyChallenge validates the query parameters and returns the
	// challenge string to echo back, or ErrTokenMismatch.
	VerifyChallenge(query url.Values) (string, error)
}

// HeaderAuthenticator is implemented by normalizers whose provider signs
// webhook deliveries with a header token.
type HeaderAuthenticator interface {
	// Authenticate checks the request headers, returning ErrTokenMismatch on
	// failure. An unconfigured token disables the check.
	Authenticate(header http.Header) error
}

// Registry maps providers to their normalizers.
type Registry struct {
	normalizers map[models.Provider]Normalizer
}

// NewRegistry builds a registry from the given normalizers.
func NewRegistry(normalizers ...Normalizer) *Registry {
	r := &Registry{normalizers: make(map[models.Provider]Normalizer)}
	for _, n := range normalizers {
		r.normalizers[n.Provider()] = n
	}
	return r
}

// Get returns the normalizer for a provider.
func (r *Registry) Get(provider models.Provider) (Normalizer, bool) {
	n, ok := r.normalizers[provider]
	return n, ok
}
