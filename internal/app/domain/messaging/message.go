// Package messaging defines the outbound message passed between the workflow
// engine and the internal messaging endpoints.
package messaging

import "fmt"

// Channels the messaging service can deliver on.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
)

// ValidChannel reports whether c names a deliverable channel.
func ValidChannel(c string) bool {
	switch c {
	case ChannelWhatsApp, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

// Message is one outbound send request. It crosses the internal HTTP
// boundary, so it carries JSON tags.
type Message struct {
	Channel   string            `json:"channel"`
	AccountID string            `json:"account_id"`
	LeadID    string            `json:"lead_id,omitempty"`
	To        string            `json:"to"`
	Subject   string            `json:"subject,omitempty"`
	Body      string            `json:"body,omitempty"`
	Template  string            `json:"template,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

// Validate checks the fields every send needs.
func (m Message) Validate() error {
	if !ValidChannel(m.Channel) {
		return fmt.Errorf("unknown channel %q", m.Channel)
	}
	if m.To == "" {
		return fmt.Errorf("recipient is required")
	}
	if m.Channel == ChannelEmail && m.Subject == "" {
		return fmt.Errorf("subject is required for email")
	}
	if m.Channel != ChannelWhatsApp && m.Body == "" {
		return fmt.Errorf("body is required")
	}
	if m.Channel == ChannelWhatsApp && m.Body == "" && m.Template == "" {
		return fmt.Errorf("either body or template is required for whatsapp")
	}
	return nil
}

// Receipt reports a provider-acknowledged send.
type Receipt struct {
	MessageID string `json:"message_id"`
	Provider  string `json:"provider"`
}
