package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/messaging"
	"github.com/LeadWire-CRM/automation_layer/internal/httputil"
	"github.com/LeadWire-CRM/automation_layer/pkg/logger"
)

var _ Provider = (*BrevoClient)(nil)

// BrevoClient sends transactional email through the Brevo API.
type BrevoClient struct {
	baseURL string
	apiKey  string
	sender  string
	client  *http.Client
	log     *logger.Logger
}

// NewBrevoClient constructs a Brevo email client. sender is the from-address
// stamped on every mail.
func NewBrevoClient(baseURL, apiKey, sender string, log *logger.Logger) *BrevoClient {
	if log == nil {
		log = logger.NewDefault("brevo")
	}
	return &BrevoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		sender:  sender,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

func (c *BrevoClient) Name() string { return "brevo" }

// Send delivers msg as a transactional email.
func (c *BrevoClient) Send(ctx context.Context, msg messaging.Message) (messaging.Receipt, error) {
	payload := map[string]any{
		"sender":      map[string]string{"email": c.sender},
		"to":          []map[string]string{{"email": msg.To}},
		"subject":     msg.Subject,
		"htmlContent": msg.Body,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return messaging.Receipt{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/smtp/email", bytes.NewReader(body))
	if err != nil {
		return messaging.Receipt{}, err
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return messaging.Receipt{}, fmt.Errorf("brevo request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := httputil.ReadAllStrict(resp.Body, maxProviderBody)
	if err != nil {
		return messaging.Receipt{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return messaging.Receipt{}, fmt.Errorf("brevo api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return messaging.Receipt{}, fmt.Errorf("decode brevo response: %w", err)
	}
	return messaging.Receipt{MessageID: out.MessageID, Provider: c.Name()}, nil
}
