package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-gridcore/internal/httputil"
	"github.com/kjannette/trahn-gridcore/internal/logger"
)

const DefaultBotName = "GridCore"

type Sender struct {
	webhookURL string
	botName    string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewSender(webhookURL, botName string) *Sender {
	if botName == "" {
		botName = DefaultBotName
	}
	return &Sender{
		webhookURL: webhookURL,
		botName:    botName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
		},
	}
}

func (s *Sender) log() *logrus.Entry {
	return logger.Component("notify")
}

// Send logs msg and posts it to the webhook. Delivery failures are logged, not returned.
func (s *Sender) Send(msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Post(ctx, msg); err != nil {
		s.log().WithError(err).Error("failed to send notification after retries")
	}
}

// Post logs msg and delivers it to the webhook, returning any delivery error.
// It is a no-op beyond logging when no webhook is configured.
func (s *Sender) Post(ctx context.Context, msg string) error {
	formatted := fmt.Sprintf("[%s] %s", s.botName, msg)
	s.log().Info(formatted)

	if s.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(s.formatPayload(formatted))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.botName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.botName,
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}
