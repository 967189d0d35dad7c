package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/messaging"
	"github.com/LeadWire-CRM/automation_layer/internal/httputil"
	"github.com/LeadWire-CRM/automation_layer/pkg/logger"
)

// maxProviderBody caps how much of a provider response is read.
const maxProviderBody = 1 << 20

// defaultMessageIDPath locates the provider message id in a Graph API send
// response.
const defaultMessageIDPath = "$.messages[0].id"

var _ Provider = (*WhatsAppClient)(nil)

// WhatsAppClient sends template or text messages through the WhatsApp
// Business (Graph) API.
type WhatsAppClient struct {
	baseURL string
	token   string
	phoneID string
	idPath  string
	client  *http.Client
	log     *logger.Logger
}

// NewWhatsAppClient constructs a Graph API client. idPath overrides where the
// provider message id is read from; empty keeps the Graph default.
func NewWhatsAppClient(baseURL, token, phoneID, idPath string, log *logger.Logger) *WhatsAppClient {
	if log == nil {
		log = logger.NewDefault("whatsapp")
	}
	if idPath == "" {
		idPath = defaultMessageIDPath
	}
	return &WhatsAppClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		phoneID: phoneID,
		idPath:  idPath,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

func (c *WhatsAppClient) Name() string { return "whatsapp" }

// Send delivers msg. Template takes precedence over the plain text body;
// Params become template body parameters in key order.
func (c *WhatsAppClient) Send(ctx context.Context, msg messaging.Message) (messaging.Receipt, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                msg.To,
	}
	if msg.Template != "" {
		payload["type"] = "template"
		payload["template"] = templatePayload(msg.Template, msg.Params)
	} else {
		payload["type"] = "text"
		payload["text"] = map[string]string{"body": msg.Body}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return messaging.Receipt{}, err
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return messaging.Receipt{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return messaging.Receipt{}, fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := httputil.ReadAllStrict(resp.Body, maxProviderBody)
	if err != nil {
		return messaging.Receipt{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return messaging.Receipt{}, fmt.Errorf("whatsapp api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	receipt := messaging.Receipt{Provider: c.Name()}
	receipt.MessageID = c.extractMessageID(raw)
	return receipt, nil
}

// extractMessageID pulls the provider message id out of the response using
// the configured JSONPath. A miss is not an error; the send already
// succeeded.
func (c *WhatsAppClient) extractMessageID(raw []byte) string {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.log.WithError(err).Debug("whatsapp response not json")
		return ""
	}
	got, err := jsonpath.Get(c.idPath, doc)
	if err != nil {
		c.log.WithError(err).WithField("path", c.idPath).Debug("message id not found in response")
		return ""
	}
	id, ok := got.(string)
	if !ok {
		c.log.WithField("path", c.idPath).Debug("message id path did not resolve to a string")
		return ""
	}
	return id
}

func templatePayload(name string, params map[string]string) map[string]any {
	tpl := map[string]any{
		"name":     name,
		"language": map[string]string{"code": "en"},
	}
	if len(params) == 0 {
		return tpl
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parameters := make([]map[string]string, 0, len(keys))
	for _, k := range keys {
		parameters = append(parameters, map[string]string{"type": "text", "text": params[k]})
	}
	tpl["components"] = []map[string]any{{
		"type":       "body",
		"parameters": parameters,
	}}
	return tpl
}
