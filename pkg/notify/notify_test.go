package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGatewaySenderPostsPayload(t *testing.T) {
	var captured gatewayPayload
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewGatewaySender(GatewayConfig{URL: server.URL, ServerKey: "secret", Timeout: time.Second}, zap.NewNop())
	err := sender.Send(context.Background(), Message{
		Token: "device-token",
		Title: "Grade published",
		Body:  "A grade for Midterm was published",
		Data:  map[string]string{"event_id": "e1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "device-token", captured.Message.Token)
	assert.Equal(t, "Grade published", captured.Message.Notification.Title)
	assert.Equal(t, "e1", captured.Message.Data["event_id"])
}

func TestGatewaySenderReportsGatewayErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender := NewGatewaySender(GatewayConfig{URL: server.URL}, nil)
	err := sender.Send(context.Background(), Message{Token: "t", Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNopSenderDropsMessages(t *testing.T) {
	assert.NoError(t, NopSender{}.Send(context.Background(), Message{Token: "t"}))
}
