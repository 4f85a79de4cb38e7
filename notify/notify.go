// Package notify posts user-facing messages. Delivery is best effort: every
// failure is logged and reported in the Delivery, never returned as an error.
package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"orbot/interfaces"
	"orbot/internal/utils"
	"orbot/logging"
	"orbot/models"
)

// LogNotifier only writes messages to the log. It is used when no webhook is set.
type LogNotifier struct {
	Logger logging.LoggerInterface
}

var _ interfaces.Notifier = LogNotifier{}

func (n LogNotifier) Notify(_ context.Context, message string, images ...[]byte) models.Delivery {
	n.Logger.Info("[NOTIFY] %s (images=%d)", message, len(images))
	return models.Delivery{Status: models.DeliverySkipped}
}

// WebhookNotifier posts {"id","text","images"} to a URL.
type WebhookNotifier struct {
	URL     string
	MaxLen  int
	Timeout time.Duration
	Client  *http.Client
	Logger  logging.LoggerInterface
}

var _ interfaces.Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier builds a notifier with its own HTTP client.
func NewWebhookNotifier(url string, maxLen int, timeout time.Duration, logger logging.LoggerInterface) *WebhookNotifier {
	return &WebhookNotifier{
		URL:     url,
		MaxLen:  maxLen,
		Timeout: timeout,
		Client:  &http.Client{Timeout: timeout},
		Logger:  logger,
	}
}

type webhookPayload struct {
	ID     string   `json:"id"`
	Text   string   `json:"text"`
	Images []string `json:"images,omitempty"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, message string, images ...[]byte) models.Delivery {
	p := webhookPayload{ID: uuid.New().String(), Text: utils.Truncate(message, n.MaxLen)}
	for _, img := range images {
		p.Images = append(p.Images, base64.StdEncoding.EncodeToString(img))
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return n.failed(p.ID, err)
	}

	if n.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(raw))
	if err != nil {
		return n.failed(p.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return n.failed(p.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return n.failed(p.ID, fmt.Errorf("webhook status %d: %s", resp.StatusCode, body))
	}
	n.Logger.Info("Notification %s posted", p.ID)
	return models.Delivery{ID: p.ID, Status: models.DeliveryPosted}
}

func (n *WebhookNotifier) failed(id string, err error) models.Delivery {
	n.Logger.Warning("Notification %s failed: %v", id, err)
	return models.Delivery{ID: id, Status: models.DeliveryError, Error: err.Error()}
}

// New picks the webhook notifier when url is set.
func New(url string, maxLen int, timeout time.Duration, logger logging.LoggerInterface) interfaces.Notifier {
	if url == "" {
		return LogNotifier{Logger: logger}
	}
	return NewWebhookNotifier(url, maxLen, timeout, logger)
}
