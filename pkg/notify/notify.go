package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Message describes a single push notification addressed to one device token.
type Message struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Sender delivers push notifications to a gateway. Delivery failures are the
// caller's concern only as far as logging; they never affect business flows.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// GatewayConfig configures the HTTP push gateway client.
type GatewayConfig struct {
	URL       string
	ServerKey string
	Timeout   time.Duration
}

// GatewaySender posts messages to an FCM-style HTTP gateway.
type GatewaySender struct {
	url       string
	serverKey string
	client    *http.Client
	logger    *zap.Logger
}

// NewGatewaySender constructs a gateway-backed sender.
func NewGatewaySender(cfg GatewayConfig, logger *zap.Logger) *GatewaySender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatewaySender{
		url:       cfg.URL,
		serverKey: cfg.ServerKey,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}
}

type gatewayPayload struct {
	Message gatewayMessage `json:"message"`
}

type gatewayMessage struct {
	Token        string            `json:"token"`
	Notification gatewayBody       `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type gatewayBody struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send posts the message to the configured gateway endpoint.
func (s *GatewaySender) Send(ctx context.Context, msg Message) error {
	payload := gatewayPayload{
		Message: gatewayMessage{
			Token:        msg.Token,
			Notification: gatewayBody{Title: msg.Title, Body: msg.Body},
			Data:         msg.Data,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.serverKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.serverKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("notification gateway returned %d", resp.StatusCode)
	}

	s.logger.Debug("notification delivered", zap.String("title", msg.Title))
	return nil
}

// NopSender drops every message. Used when notifications are disabled.
type NopSender struct{}

// Send implements Sender.
func (NopSender) Send(context.Context, Message) error { return nil }
