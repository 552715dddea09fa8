package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sme-compliance/internal/config"
	"sme-compliance/internal/domain/ports/adapter"
)

var _ adapter.SMSSender = (*AfricasTalkingSMS)(nil)

// AfricasTalkingSMS sends SMS through the Africa's Talking messaging API.
type AfricasTalkingSMS struct {
	endpoint string
	username string
	apiKey   string
	senderID string
	client   *http.Client
}

func NewAfricasTalkingSMS(cfg config.SMSConfig) (*AfricasTalkingSMS, error) {
	if cfg.Username == "" || cfg.APIKey == "" {
		return nil, errors.New("africa's talking credentials not configured")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Username == "sandbox" && base == "https://api.africastalking.com" {
		base = "https://api.sandbox.africastalking.com"
	}
	return &AfricasTalkingSMS{
		endpoint: base + "/version1/messaging",
		username: cfg.Username,
		apiKey:   cfg.APIKey,
		senderID: cfg.SenderID,
		client:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (s *AfricasTalkingSMS) Send(ctx context.Context, to, message string) error {
	form := url.Values{}
	form.Set("username", s.username)
	form.Set("to", "+"+strings.TrimPrefix(to, "+"))
	form.Set("message", message)
	if s.senderID != "" {
		form.Set("from", s.senderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("africa's talking http %d", resp.StatusCode)
	}

	var out struct {
		SMSMessageData struct {
			Message    string `json:"Message"`
			Recipients []struct {
				StatusCode int    `json:"statusCode"`
				Number     string `json:"number"`
				Status     string `json:"status"`
			} `json:"Recipients"`
		} `json:"SMSMessageData"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("africa's talking decode: %w", err)
	}
	if len(out.SMSMessageData.Recipients) == 0 {
		return fmt.Errorf("africa's talking: %s", out.SMSMessageData.Message)
	}
	for _, r := range out.SMSMessageData.Recipients {
		// 100 processed, 101 sent, 102 queued
		if r.StatusCode < 100 || r.StatusCode > 102 {
			return fmt.Errorf("africa's talking rejected %s: %s", r.Number, r.Status)
		}
	}
	return nil
}
