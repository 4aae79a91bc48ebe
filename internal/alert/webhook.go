package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/taskmasterd/taskmasterd/internal/config"
)

// WebhookSink POSTs `{"message": <line>}` to a configured URL (spec.md
// §4.7), with the method and headers overridable.
type WebhookSink struct {
	cfg    config.WebhookConfig
	client *http.Client
}

func NewWebhookSink(cfg config.WebhookConfig) *WebhookSink {
	return &WebhookSink{cfg: cfg, client: &http.Client{Timeout: 5 * time.Second}}
}

func (s *WebhookSink) Send(ctx context.Context, line string, _ Event) error {
	body, err := json.Marshal(map[string]string{"message": line})
	if err != nil {
		return err
	}
	method := s.cfg.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *WebhookSink) Close() error { return nil }
