package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"becoin/internal/config"
)

const defaultWebhookTimeout = 5 * time.Second

// webhookPublisher posts the latest snapshot message to each enabled hook.
// Only the newest pending message is kept.
type webhookPublisher struct {
	hooks   []config.WebhookConfig
	client  *http.Client
	pending chan []byte
	logger  *slog.Logger
}

func newWebhookPublisher(hooks []config.WebhookConfig, logger *slog.Logger) *webhookPublisher {
	var enabled []config.WebhookConfig
	for _, hook := range hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		enabled = append(enabled, hook)
	}
	return &webhookPublisher{
		hooks:   enabled,
		client:  &http.Client{Timeout: defaultWebhookTimeout},
		pending: make(chan []byte, 1),
		logger:  logger,
	}
}

func (p *webhookPublisher) enqueue(msg []byte) {
	if len(p.hooks) == 0 {
		return
	}
	for {
		select {
		case p.pending <- msg:
			return
		default:
		}
		// replace the stale message
		select {
		case <-p.pending:
		default:
		}
	}
}

func (p *webhookPublisher) run(ctx context.Context) {
	if len(p.hooks) == 0 {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.pending:
			delivery := uuid.NewString()
			for _, hook := range p.hooks {
				if err := p.post(ctx, hook, delivery, msg); err != nil {
					p.logger.Warn("webhook delivery failed", "url", hook.URL, "delivery", delivery, "err", err)
				}
			}
		}
	}
}

func (p *webhookPublisher) post(ctx context.Context, hook config.WebhookConfig, delivery string, body []byte) error {
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := p.client
	if timeout != p.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Becoin-Event", msgSnapshot)
	req.Header.Set("X-Becoin-Delivery", delivery)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Becoin-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}
