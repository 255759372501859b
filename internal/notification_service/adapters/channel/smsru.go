package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/notifly/gateway/internal/notification_service/domain"
)

// SMSConfig holds the sms.ru gateway settings.
type SMSConfig struct {
	APIID  string
	APIURL string
}

// SMSSender delivers via the sms.ru HTTP API. The transport has no subject
// field, so title and body are concatenated into "title: body".
type SMSSender struct {
	config     SMSConfig
	httpClient *http.Client
}

type smsRuResponse struct {
	Status     string `json:"status"`
	StatusText string `json:"status_text"`
}

// NewSMSSender creates the SMS adapter with a bounded HTTP timeout so an
// unresponsive gateway cannot stall the dispatch walk.
func NewSMSSender(config SMSConfig, timeout time.Duration) *SMSSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if config.APIURL == "" {
		config.APIURL = "https://sms.ru/sms/send"
	}
	return &SMSSender{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *SMSSender) Kind() domain.ChannelKind { return domain.ChannelSMS }

func (s *SMSSender) Send(ctx context.Context, address, title, body string) domain.DeliveryOutcome {
	if address == "" {
		return permanentFailure("empty destination")
	}
	if s.config.APIID == "" {
		return permanentFailure("sms service not configured")
	}

	text := body
	if title != "" {
		text = title + ": " + body
	}

	params := url.Values{}
	params.Set("api_id", s.config.APIID)
	params.Set("to", address)
	params.Set("msg", text)
	params.Set("json", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIURL+"?"+params.Encode(), nil)
	if err != nil {
		return failure(fmt.Sprintf("sms request build failed: %v", err))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return failure(fmt.Sprintf("sms gateway request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return failure(fmt.Sprintf("sms gateway returned status %d", resp.StatusCode))
	}

	var data smsRuResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return failure(fmt.Sprintf("sms gateway response malformed: %v", err))
	}
	if data.Status != "OK" {
		reason := data.StatusText
		if reason == "" {
			reason = "unknown error"
		}
		return failure(fmt.Sprintf("sms error: %s", reason))
	}
	return success()
}
