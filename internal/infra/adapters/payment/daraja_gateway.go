package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"sme-compliance/internal/config"
	"sme-compliance/internal/domain"
	"sme-compliance/internal/domain/ports/adapter"
	"sme-compliance/internal/infra/metrics"
)

var _ adapter.MobileMoneyGateway = (*DarajaGateway)(nil)

const (
	darajaSandboxURL    = "https://sandbox.safaricom.co.ke"
	darajaProductionURL = "https://api.safaricom.co.ke"

	stkTransactionType = "CustomerPayBillOnline"
	// tokens live for an hour; refresh a minute early
	tokenSkew = time.Minute
)

// eat is Kenya's wall clock. No DST, so a fixed zone avoids a tzdata dependency.
var eat = time.FixedZone("EAT", 3*60*60)

// DarajaGateway implements adapter.MobileMoneyGateway against Safaricom's Daraja API.
type DarajaGateway struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	shortCode      string
	passkey        string
	callbackURL    string
	client         *http.Client
	now            func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewDarajaGateway(cfg config.MpesaConfig) (*DarajaGateway, error) {
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		return nil, errors.New("daraja consumer credentials empty")
	}
	if cfg.ShortCode == "" || cfg.Passkey == "" {
		return nil, errors.New("daraja shortcode/passkey empty")
	}
	if _, err := url.ParseRequestURI(cfg.CallbackURL); err != nil {
		return nil, fmt.Errorf("invalid callback url: %w", err)
	}
	base := darajaSandboxURL
	if cfg.Environment == "production" {
		base = darajaProductionURL
	}
	return &DarajaGateway{
		baseURL:        base,
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		shortCode:      cfg.ShortCode,
		passkey:        cfg.Passkey,
		callbackURL:    cfg.CallbackURL,
		client:         &http.Client{Timeout: 30 * time.Second},
		now:            time.Now,
	}, nil
}

func (g *DarajaGateway) Name() string { return "mpesa" }

// token returns a cached OAuth token, fetching a new one when it is close to expiry.
func (g *DarajaGateway) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.accessToken != "" && g.now().Before(g.tokenExpiry) {
		return g.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.consumerKey, g.consumerSecret)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		metrics.ObserveGatewayCall(g.Name(), "oauth", "error", time.Since(start))
		return "", fmt.Errorf("daraja oauth: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.ObserveGatewayCall(g.Name(), "oauth", "rejected", time.Since(start))
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return "", &domain.GatewayError{Status: resp.StatusCode, Code: "oauth", Description: string(body)}
	}
	metrics.ObserveGatewayCall(g.Name(), "oauth", "ok", time.Since(start))

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("daraja oauth decode: %w", err)
	}
	if out.AccessToken == "" {
		return "", errors.New("daraja oauth: empty access token")
	}
	ttl := time.Hour
	if secs, err := strconv.Atoi(out.ExpiresIn); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	g.accessToken = out.AccessToken
	g.tokenExpiry = g.now().Add(ttl - tokenSkew)
	return g.accessToken, nil
}

// Timestamp formats t the way Daraja expects: YYYYMMDDHHMMSS in Kenyan time.
func Timestamp(t time.Time) string {
	return t.In(eat).Format("20060102150405")
}

// Password is base64(shortcode + passkey + timestamp).
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPush asks Daraja to prompt the handset. Any non-"0" ResponseCode or
// error envelope comes back as *domain.GatewayError.
func (g *DarajaGateway) STKPush(ctx context.Context, in adapter.STKPushRequest) (*adapter.STKPushResponse, error) {
	tok, err := g.token(ctx)
	if err != nil {
		return nil, err
	}
	ts := Timestamp(g.now())
	body := stkPushBody{
		BusinessShortCode: g.shortCode,
		Password:          Password(g.shortCode, g.passkey, ts),
		Timestamp:         ts,
		TransactionType:   stkTransactionType,
		Amount:            in.Amount,
		PartyA:            in.Phone,
		PartyB:            g.shortCode,
		PhoneNumber:       in.Phone,
		CallBackURL:       g.callbackURL,
		AccountReference:  in.AccountReference,
		TransactionDesc:   in.Description,
	}
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		metrics.ObserveGatewayCall(g.Name(), "stk_push", "error", time.Since(start))
		return nil, fmt.Errorf("daraja stk push: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		CustomerMessage     string `json:"CustomerMessage"`
		RequestID           string `json:"requestId"`
		ErrorCode           string `json:"errorCode"`
		ErrorMessage        string `json:"errorMessage"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &out); err != nil {
		metrics.ObserveGatewayCall(g.Name(), "stk_push", "error", time.Since(start))
		return nil, &domain.GatewayError{Status: resp.StatusCode, Code: "decode", Description: string(raw)}
	}

	if out.ErrorCode != "" || resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			g.invalidateToken()
		}
		metrics.ObserveGatewayCall(g.Name(), "stk_push", "rejected", time.Since(start))
		desc := out.ErrorMessage
		if desc == "" {
			desc = out.ResponseDescription
		}
		return nil, &domain.GatewayError{Status: resp.StatusCode, Code: out.ErrorCode, Description: desc}
	}

	res := &adapter.STKPushResponse{
		MerchantRequestID:   out.MerchantRequestID,
		CheckoutRequestID:   out.CheckoutRequestID,
		ResponseCode:        out.ResponseCode,
		ResponseDescription: out.ResponseDescription,
		CustomerMessage:     out.CustomerMessage,
	}
	if !res.Accepted() {
		metrics.ObserveGatewayCall(g.Name(), "stk_push", "rejected", time.Since(start))
		return nil, &domain.GatewayError{Code: out.ResponseCode, Description: out.ResponseDescription}
	}
	metrics.ObserveGatewayCall(g.Name(), "stk_push", "ok", time.Since(start))
	return res, nil
}

func (g *DarajaGateway) invalidateToken() {
	g.mu.Lock()
	g.accessToken = ""
	g.mu.Unlock()
}
