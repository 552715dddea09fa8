package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sme-compliance/internal/config"
	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/adapter"
)

var _ adapter.Mailer = (*ResendMailer)(nil)

// ResendMailer posts transactional mail to a Resend-compatible JSON API.
type ResendMailer struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

func NewResendMailer(cfg config.EmailConfig) (*ResendMailer, error) {
	if cfg.APIKey == "" || cfg.From == "" {
		return nil, errors.New("email credentials not configured")
	}
	return &ResendMailer{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/emails",
		apiKey:   cfg.APIKey,
		from:     cfg.From,
		client:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

func (m *ResendMailer) Send(ctx context.Context, msg model.EmailPayload) error {
	if msg.To == "" {
		return errors.New("email recipient is empty")
	}
	body, err := json.Marshal(resendPayload{From: m.from, To: []string{msg.To}, Subject: msg.Subject, HTML: msg.HTML, Text: msg.Text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("email api error: %d %s", res.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
