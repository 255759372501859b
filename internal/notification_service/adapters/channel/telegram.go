package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/notifly/gateway/internal/notification_service/domain"
)

// TelegramConfig holds Telegram Bot API settings. BaseURL is overridable for
// testing and defaults to the public API endpoint.
type TelegramConfig struct {
	BotToken string
	BaseURL  string
}

// TelegramSender delivers through the Bot API. The title is emphasized with
// the transport's native Markdown marker, followed by the body.
type TelegramSender struct {
	config     TelegramConfig
	httpClient *http.Client
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegramSender creates the chat adapter with a bounded HTTP timeout.
func NewTelegramSender(config TelegramConfig, timeout time.Duration) *TelegramSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.telegram.org"
	}
	return &TelegramSender{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *TelegramSender) Kind() domain.ChannelKind { return domain.ChannelTelegram }

func (s *TelegramSender) Send(ctx context.Context, address, title, body string) domain.DeliveryOutcome {
	if address == "" {
		return permanentFailure("empty destination")
	}
	if s.config.BotToken == "" {
		return permanentFailure("telegram bot token not configured")
	}

	text := body
	if title != "" {
		text = "*" + title + "*\n" + body
	}

	payload := map[string]interface{}{
		"chat_id":    address,
		"text":       text,
		"parse_mode": "Markdown",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return failure(fmt.Sprintf("telegram payload marshal failed: %v", err))
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.config.BaseURL, s.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return failure(fmt.Sprintf("telegram request build failed: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return failure(fmt.Sprintf("telegram api request failed: %v", err))
	}
	defer resp.Body.Close()

	var tgResp telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&tgResp); err != nil {
		if resp.StatusCode >= 400 {
			return failure(fmt.Sprintf("telegram api returned status %d", resp.StatusCode))
		}
		return failure(fmt.Sprintf("telegram api response malformed: %v", err))
	}
	if !tgResp.OK {
		desc := tgResp.Description
		if desc == "" {
			desc = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return failure(fmt.Sprintf("telegram api error: %s", desc))
	}
	return success()
}
