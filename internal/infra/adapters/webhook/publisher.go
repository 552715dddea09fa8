package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"sme-compliance/internal/config"
	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/adapter"
)

var _ adapter.WebhookPublisher = (*Publisher)(nil)

const (
	SignatureHeader = "X-Webhook-Signature"
	TimestampHeader = "X-Webhook-Timestamp"
)

// Publisher posts integration events to one configured URL. When a secret is
// set, each request carries an HMAC-SHA256 over "timestamp.body".
type Publisher struct {
	url    string
	secret []byte
	client *http.Client
	now    func() time.Time
}

func NewPublisher(cfg config.WebhookConfig) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook url is empty")
	}
	return &Publisher{
		url:    cfg.URL,
		secret: []byte(cfg.Secret),
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, ev model.IntegrationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", ev.Event)
	if len(p.secret) > 0 {
		ts := strconv.FormatInt(p.now().Unix(), 10)
		req.Header.Set(TimestampHeader, ts)
		req.Header.Set(SignatureHeader, Sign(p.secret, ts, body))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook http %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of "ts.body" under secret.
func Sign(secret []byte, ts string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
