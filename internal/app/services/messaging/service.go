// Package messaging delivers workflow send_* actions through external
// providers. The service fronts one provider per channel and exposes the
// internal HTTP endpoints the engine calls over loopback.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/messaging"
	"github.com/LeadWire-CRM/automation_layer/internal/app/metrics"
	"github.com/LeadWire-CRM/automation_layer/internal/httputil"
	"github.com/LeadWire-CRM/automation_layer/pkg/logger"
)

// maxSendBody caps the request body accepted on the internal send endpoints.
const maxSendBody = 1 << 20

// Provider delivers a message on one channel.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg messaging.Message) (messaging.Receipt, error)
}

// Service routes messages to the provider configured for their channel.
// Channels without a provider reject sends; workflow actions log that as an
// action failure and move on.
type Service struct {
	providers map[string]Provider
	log       *logger.Logger
}

// New constructs a messaging service. Nil providers leave their channel
// unconfigured.
func New(whatsapp, email, sms Provider, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("messaging")
	}
	providers := make(map[string]Provider)
	if whatsapp != nil {
		providers[messaging.ChannelWhatsApp] = whatsapp
	}
	if email != nil {
		providers[messaging.ChannelEmail] = email
	}
	if sms != nil {
		providers[messaging.ChannelSMS] = sms
	}
	return &Service{providers: providers, log: log}
}

// Send validates and delivers a message on its channel.
func (s *Service) Send(ctx context.Context, msg messaging.Message) (messaging.Receipt, error) {
	if err := msg.Validate(); err != nil {
		return messaging.Receipt{}, err
	}

	provider, ok := s.providers[msg.Channel]
	if !ok {
		return messaging.Receipt{}, fmt.Errorf("channel %s not configured", msg.Channel)
	}

	start := time.Now()
	receipt, err := provider.Send(ctx, msg)
	metrics.RecordMessageSent(msg.Channel, err == nil)
	if err != nil {
		s.log.WithError(err).
			WithField("channel", msg.Channel).
			WithField("provider", provider.Name()).
			Warn("message send failed")
		return messaging.Receipt{}, err
	}

	s.log.WithField("channel", msg.Channel).
		WithField("provider", provider.Name()).
		WithField("message_id", receipt.MessageID).
		WithField("duration", time.Since(start).String()).
		Info("message sent")
	return receipt, nil
}

// Configured reports whether the channel has a provider.
func (s *Service) Configured(channel string) bool {
	_, ok := s.providers[channel]
	return ok
}

// RegisterRoutes mounts the internal send endpoints on the router.
func (s *Service) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/internal/messaging/{channel}", s.handleSend).Methods("POST")
}

func (s *Service) handleSend(w http.ResponseWriter, r *http.Request) {
	channel := mux.Vars(r)["channel"]
	if !messaging.ValidChannel(channel) {
		httputil.BadRequest(w, fmt.Sprintf("unknown channel %q", channel))
		return
	}

	body, err := httputil.ReadAllStrict(r.Body, maxSendBody)
	if err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}
	var msg messaging.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}
	// The path names the channel; the payload cannot redirect it.
	msg.Channel = channel

	if err := msg.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if !s.Configured(channel) {
		httputil.WriteError(w, http.StatusServiceUnavailable, fmt.Sprintf("channel %s not configured", channel))
		return
	}

	receipt, err := s.Send(r.Context(), msg)
	if err != nil {
		httputil.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}
