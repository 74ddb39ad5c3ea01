package pubsub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"portal/config"
	"portal/internal/domain/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLocalHTTPPublisher_PublishNotification(t *testing.T) {
	notification := &service.Notification{
		ID:        uuid.NewString(),
		RequestID: "req-1",
		AccountID: uuid.New(),
		Event:     service.EventPasswordChanged,
		Message:   "Your password was changed.",
	}

	var received PubSubPushMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-1", r.Header.Get("X-Request-Id"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	publisher := NewLocalHTTPPublisher(server.URL, discardLogger())
	require.NoError(t, publisher.PublishNotification(context.Background(), notification))

	assert.Equal(t, notification.ID, received.Message.MessageID)
	assert.Equal(t, service.EventPasswordChanged, received.Message.Attributes["event"])
	assert.Equal(t, notification.AccountID.String(), received.Message.Attributes["account_id"])

	data, err := base64.StdEncoding.DecodeString(received.Message.Data)
	require.NoError(t, err)
	var decoded service.Notification
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *notification, decoded)
}

func TestLocalHTTPPublisher_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	publisher := NewLocalHTTPPublisher(server.URL, discardLogger())
	err := publisher.PublishNotification(context.Background(), &service.Notification{ID: "n1", AccountID: uuid.New()})
	assert.Error(t, err)
}

func TestNewEventPublisher_SelectsProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	cfg.Notification.Provider = ""
	publisher, err := NewEventPublisher(PublisherParams{Lc: fxtest.NewLifecycle(t), Config: cfg, Logger: discardLogger()})
	require.NoError(t, err)
	assert.IsType(t, &noopPublisher{}, publisher)

	cfg.Notification.Provider = ProviderLocal
	cfg.Notification.LocalEndpoint = ""
	_, err = NewEventPublisher(PublisherParams{Lc: fxtest.NewLifecycle(t), Config: cfg, Logger: discardLogger()})
	assert.Error(t, err)

	cfg.Notification.LocalEndpoint = "http://localhost:8090/push"
	publisher, err = NewEventPublisher(PublisherParams{Lc: fxtest.NewLifecycle(t), Config: cfg, Logger: discardLogger()})
	require.NoError(t, err)
	assert.IsType(t, &localHTTPPublisher{}, publisher)

	cfg.Notification.Provider = ProviderGoogle
	cfg.Notification.ProjectID = ""
	_, err = NewEventPublisher(PublisherParams{Lc: fxtest.NewLifecycle(t), Config: cfg, Logger: discardLogger()})
	assert.Error(t, err)
}

func TestMessageAttributes_OmitNotificationData(t *testing.T) {
	attributes := messageAttributes(&service.Notification{
		ID:        "n-9",
		AccountID: uuid.New(),
		Event:     service.EventPasswordResetRequest,
		Data:      map[string]string{"reset_token": "0123abcd"},
	})

	assert.NotContains(t, attributes, "reset_token")
	for _, value := range attributes {
		assert.NotEqual(t, "0123abcd", value)
	}
}
