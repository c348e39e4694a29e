package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PublisherClient communicates with the Python bot internal API that
// actually posts messages to Telegram and notifies users.
type PublisherClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewPublisherClient(baseURL string, log *zap.Logger) *PublisherClient {
	return &PublisherClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

type PublishRequest struct {
	DealID        string  `json:"deal_id"`
	PlacementKind string  `json:"placement_kind"` // post / repost / story
	Text          *string `json:"text,omitempty"`
	MediaRef      *string `json:"media_ref,omitempty"`
	MediaKind     *string `json:"media_kind,omitempty"`
}

type PublishResult struct {
	MessageID int64  `json:"message_id"`
	PostURL   string `json:"post_url"`
	Text      string `json:"text"` // текст, как он реально опубликован
}

func (c *PublisherClient) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/internal/deals/%s/publish", c.baseURL, req.DealID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("publisher service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("publisher service returned %d: %s", resp.StatusCode, string(b))
	}

	var result PublishResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *PublisherClient) SendNotification(ctx context.Context, telegramUserID int64, text string) error {
	body, _ := json.Marshal(map[string]any{
		"telegram_user_id": telegramUserID,
		"text":             text,
	})

	url := fmt.Sprintf("%s/internal/notify", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("failed to send notification", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("notification failed", zap.Int("status", resp.StatusCode))
	}
	return nil
}
