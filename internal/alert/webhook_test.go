package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskmasterd/taskmasterd/internal/config"
)

func TestWebhookSinkPostsMessage(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(config.WebhookConfig{URL: srv.URL})
	err := sink.Send(context.Background(), "hello world", Event{Kind: Started})
	require.NoError(t, err)
	require.Equal(t, "hello world", received["message"])
}

func TestWebhookSinkNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewWebhookSink(config.WebhookConfig{URL: srv.URL})
	err := sink.Send(context.Background(), "line", Event{})
	require.Error(t, err)
}
