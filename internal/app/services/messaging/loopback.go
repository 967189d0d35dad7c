package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/messaging"
	"github.com/LeadWire-CRM/automation_layer/internal/httputil"
	"github.com/LeadWire-CRM/automation_layer/pkg/logger"
)

// LoopbackSender delivers messages by calling the internal messaging
// endpoints over HTTP instead of invoking providers in process. Deployments
// that run the provider credentials on a separate instance point the engine
// at that instance through this sender.
type LoopbackSender struct {
	client *httputil.ServiceClient
	log    *logger.Logger
}

// NewLoopbackSender creates a sender that posts to baseURL. The token is
// attached as a bearer credential when non-empty.
func NewLoopbackSender(baseURL, token string, log *logger.Logger) *LoopbackSender {
	if log == nil {
		log = logger.NewDefault("messaging-loopback")
	}
	return &LoopbackSender{
		client: httputil.NewServiceClient(httputil.ServiceClientConfig{
			BaseURL: baseURL,
			Token:   token,
			Timeout: 15 * time.Second,
		}),
		log: log,
	}
}

// Send posts the message to the channel's internal endpoint and decodes the
// receipt.
func (s *LoopbackSender) Send(ctx context.Context, msg messaging.Message) (messaging.Receipt, error) {
	if err := msg.Validate(); err != nil {
		return messaging.Receipt{}, err
	}

	resp, err := s.client.Post(ctx, "/internal/messaging/"+msg.Channel, msg)
	if err != nil {
		return messaging.Receipt{}, fmt.Errorf("messaging request failed: %w", err)
	}

	var receipt messaging.Receipt
	if err := httputil.DecodeResponse(resp, &receipt); err != nil {
		return messaging.Receipt{}, err
	}

	s.log.WithField("channel", msg.Channel).
		WithField("message_id", receipt.MessageID).
		Debug("Message delivered over loopback")
	return receipt, nil
}
