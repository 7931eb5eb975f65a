package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/spec-kit/whatsdesk/pkg/util"
)

// GatewaySendResult is the subset of the gateway's send response we keep.
type GatewaySendResult struct {
	MessageID string
	RemoteJid string
}

// GatewayMediaRequest describes an outbound media send.
type GatewayMediaRequest struct {
	Number    string
	MediaType string
	Base64    string
	Caption   string
	FileName  string
}

// CreateInstanceRequest provisions a gateway-side instance.
type CreateInstanceRequest struct {
	InstanceName  string
	Integration   string
	QRCode        bool
	WebhookURL    string
	WebhookEvents []string
	Token         string
	Number        string
	BusinessID    string
}

// ConnectResult carries the pairing payload the gateway returns.
type ConnectResult struct {
	QRCode string
}

// GatewayClient talks to an Evolution-style WhatsApp gateway over REST.
// Calls carry the API key header and a bounded timeout; 401 and 404 are
// mapped to distinct error codes because each needs different remediation.
type GatewayClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// NewGatewayClient constructs a client, prepending https:// when the
// configured base URL omits a scheme.
func NewGatewayClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *GatewayClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL != "" && !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GatewayClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// CreateInstance provisions an instance with webhook configuration.
func (c *GatewayClient) CreateInstance(ctx context.Context, req CreateInstanceRequest) error {
	payload := map[string]any{
		"instanceName": req.InstanceName,
		"qrcode":       req.QRCode,
		"integration":  req.Integration,
	}
	if req.Token != "" {
		payload["token"] = req.Token
		payload["number"] = req.Number
		payload["businessId"] = req.BusinessID
	}
	if req.WebhookURL != "" {
		payload["webhook"] = map[string]any{
			"enabled":         true,
			"url":             req.WebhookURL,
			"webhookByEvents": false,
			"webhookBase64":   true,
			"events":          req.WebhookEvents,
		}
	}
	return c.doJSON(ctx, http.MethodPost, "/instance/create", req.InstanceName, payload, nil)
}

// Connect requests a pairing payload for the instance.
func (c *GatewayClient) Connect(ctx context.Context, instanceName string) (*ConnectResult, error) {
	var raw map[string]any
	if err := c.doJSON(ctx, http.MethodGet, "/instance/connect/"+instanceName, instanceName, nil, &raw); err != nil {
		return nil, err
	}
	return &ConnectResult{QRCode: extractQR(raw)}, nil
}

// ConnectionState fetches the instance's raw state token.
func (c *GatewayClient) ConnectionState(ctx context.Context, instanceName string) (string, error) {
	var raw struct {
		Instance struct {
			State string `json:"state"`
		} `json:"instance"`
		State string `json:"state"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/instance/connectionState/"+instanceName, instanceName, nil, &raw); err != nil {
		return "", err
	}
	if raw.Instance.State != "" {
		return raw.Instance.State, nil
	}
	return raw.State, nil
}

// FetchInstances lists gateway-side instances.
func (c *GatewayClient) FetchInstances(ctx context.Context) ([]map[string]any, error) {
	var raw []map[string]any
	if err := c.doJSON(ctx, http.MethodGet, "/instance/fetchInstances", "", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// HasInstance reports whether an instance with the given name exists.
func (c *GatewayClient) HasInstance(ctx context.Context, instanceName string) (bool, error) {
	instances, err := c.FetchInstances(ctx)
	if err != nil {
		return false, err
	}
	for _, inst := range instances {
		if name, _ := inst["instanceName"].(string); name == instanceName {
			return true, nil
		}
		if name, _ := inst["name"].(string); name == instanceName {
			return true, nil
		}
		if nested, ok := inst["instance"].(map[string]any); ok {
			if name, _ := nested["instanceName"].(string); name == instanceName {
				return true, nil
			}
		}
	}
	return false, nil
}

// DeleteInstance removes the instance from the gateway.
func (c *GatewayClient) DeleteInstance(ctx context.Context, instanceName string) error {
	return c.doJSON(ctx, http.MethodDelete, "/instance/delete/"+instanceName, instanceName, nil, nil)
}

// LogoutInstance signs the instance out without deleting it.
func (c *GatewayClient) LogoutInstance(ctx context.Context, instanceName string) error {
	return c.doJSON(ctx, http.MethodDelete, "/instance/logout/"+instanceName, instanceName, nil, nil)
}

// SendText delivers a text message through the instance.
func (c *GatewayClient) SendText(ctx context.Context, instanceName, number, text string) (*GatewaySendResult, error) {
	payload := map[string]any{"number": number, "text": text}
	var raw sendResponse
	if err := c.doJSON(ctx, http.MethodPost, "/message/sendText/"+instanceName, instanceName, payload, &raw); err != nil {
		return nil, err
	}
	return raw.result(), nil
}

// SendMedia delivers a media message (base64 body) through the instance.
func (c *GatewayClient) SendMedia(ctx context.Context, instanceName string, req GatewayMediaRequest) (*GatewaySendResult, error) {
	payload := map[string]any{
		"number":    req.Number,
		"mediatype": req.MediaType,
		"media":     req.Base64,
		"caption":   req.Caption,
	}
	if req.FileName != "" {
		payload["fileName"] = req.FileName
	}
	var raw sendResponse
	if err := c.doJSON(ctx, http.MethodPost, "/message/sendMedia/"+instanceName, instanceName, payload, &raw); err != nil {
		return nil, err
	}
	return raw.result(), nil
}

// FetchProfilePicture returns the contact's profile picture URL, or "" when
// the gateway has none. Lookup failures are soft: ("", nil).
func (c *GatewayClient) FetchProfilePicture(ctx context.Context, instanceName, number string) (string, error) {
	payload := map[string]any{"number": number}
	var raw struct {
		ProfilePictureURL string `json:"profilePictureUrl"`
		URL               string `json:"url"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/chat/fetchProfilePictureUrl/"+instanceName, instanceName, payload, &raw)
	if err != nil {
		if apperrors.IsCode(err, "ERR_WAPP_INSTANCE_NOT_FOUND") || apperrors.IsCode(err, "ERR_WAPP_CONFIG") {
			return "", nil
		}
		return "", err
	}
	if raw.ProfilePictureURL != "" {
		return raw.ProfilePictureURL, nil
	}
	return raw.URL, nil
}

// FetchBase64Media asks the gateway to re-materialize a media payload by
// message id.
func (c *GatewayClient) FetchBase64Media(ctx context.Context, instanceName, messageID string) (string, error) {
	payload := map[string]any{
		"message": map[string]any{
			"key": map[string]any{"id": messageID},
		},
		"convertToMp4": false,
	}
	var raw struct {
		Base64 string `json:"base64"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/chat/getBase64FromMediaMessage/"+instanceName, instanceName, payload, &raw); err != nil {
		return "", err
	}
	return raw.Base64, nil
}

type sendResponse struct {
	Key struct {
		ID        string `json:"id"`
		RemoteJid string `json:"remoteJid"`
	} `json:"key"`
}

func (r sendResponse) result() *GatewaySendResult {
	return &GatewaySendResult{MessageID: r.Key.ID, RemoteJid: r.Key.RemoteJid}
}

func (c *GatewayClient) doJSON(ctx context.Context, method, path, instanceName string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("gateway call failed", zap.String("path", path), zap.Error(err))
		return apperrors.NewTransportTransientError("gateway unreachable", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.NewGatewayUnauthorizedError(instanceName)
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NewInstanceNotFoundError(instanceName)
	case resp.StatusCode >= 500:
		return apperrors.NewTransportTransientError(
			fmt.Sprintf("gateway returned %d", resp.StatusCode),
			errors.New(strings.TrimSpace(string(raw))))
	case resp.StatusCode >= 400:
		return apperrors.NewTransportConfigError(
			fmt.Sprintf("gateway rejected the request (%d): %s", resp.StatusCode, gatewayErrorMessage(raw)),
			map[string]any{"instance": instanceName})
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			c.logger.Warn("gateway response decode failed", zap.String("path", path), zap.Error(err))
			return apperrors.NewTransportTransientError("gateway response undecodable", err)
		}
	}
	return nil
}

func gatewayErrorMessage(raw []byte) string {
	var parsed struct {
		Message  any `json:"message"`
		Response struct {
			Message any `json:"message"`
		} `json:"response"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if parsed.Message != nil {
			return fmt.Sprint(parsed.Message)
		}
		if parsed.Response.Message != nil {
			return fmt.Sprint(parsed.Response.Message)
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func extractQR(raw map[string]any) string {
	if qr, _ := raw["base64"].(string); qr != "" {
		return qr
	}
	if nested, ok := raw["qrcode"].(map[string]any); ok {
		if qr, _ := nested["base64"].(string); qr != "" {
			return qr
		}
		if qr, _ := nested["code"].(string); qr != "" {
			return qr
		}
	}
	if qr, _ := raw["code"].(string); qr != "" {
		return qr
	}
	return ""
}
