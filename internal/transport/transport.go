// Package transport delivers composed messages and maps each provider's
// native errors onto the engine's outcome taxonomy. A transport never
// returns a Go error for a delivery failure; failures are outcomes.
package transport

import (
	"context"
	"log"

	"github.com/cadencehq/cadence/internal/domain"
)

// Message is one outbound email, fully rendered.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Transport sends a message and reports what happened as a delivery
// outcome. An error return is reserved for programming mistakes such as
// an unconfigured client, not for delivery failures.
type Transport interface {
	Send(ctx context.Context, msg Message) domain.DeliveryOutcome
}

// LogTransport pretends to send by logging the message. Used in
// development and when no email provider is configured.
type LogTransport struct{}

func (LogTransport) Send(_ context.Context, msg Message) domain.DeliveryOutcome {
	log.Printf("transport: dry-run send to=%s subject=%q bytes=%d", msg.To, msg.Subject, len(msg.Body))
	return domain.DeliveryOutcome{Status: domain.OutcomeSent}
}
