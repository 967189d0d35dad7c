package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/messaging"
	"github.com/LeadWire-CRM/automation_layer/internal/httputil"
	"github.com/LeadWire-CRM/automation_layer/pkg/logger"
)

var _ Provider = (*TwilioClient)(nil)

// TwilioClient sends SMS through the Twilio REST API.
type TwilioClient struct {
	baseURL string
	sid     string
	token   string
	from    string
	client  *http.Client
	log     *logger.Logger
}

// NewTwilioClient constructs a Twilio SMS client.
func NewTwilioClient(baseURL, sid, token, from string, log *logger.Logger) *TwilioClient {
	if log == nil {
		log = logger.NewDefault("twilio")
	}
	return &TwilioClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		sid:     sid,
		token:   token,
		from:    from,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

func (c *TwilioClient) Name() string { return "twilio" }

// Send delivers msg as an SMS from the configured number.
func (c *TwilioClient) Send(ctx context.Context, msg messaging.Message) (messaging.Receipt, error) {
	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", c.from)
	form.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.sid)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return messaging.Receipt{}, err
	}
	req.SetBasicAuth(c.sid, c.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return messaging.Receipt{}, fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := httputil.ReadAllStrict(resp.Body, maxProviderBody)
	if err != nil {
		return messaging.Receipt{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return messaging.Receipt{}, fmt.Errorf("twilio api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		Sid string `json:"sid"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return messaging.Receipt{}, fmt.Errorf("decode twilio response: %w", err)
	}
	return messaging.Receipt{MessageID: out.Sid, Provider: c.Name()}, nil
}
