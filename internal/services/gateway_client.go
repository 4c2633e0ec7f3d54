package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GatewayClient talks to the external payment gateway. Only two operations
// matter to the core: initiate a checkout and verify a reference.
type GatewayClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	log        *zap.Logger
}

func NewGatewayClient(baseURL, secretKey string, log *zap.Logger) *GatewayClient {
	return &GatewayClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

type checkoutResponse struct {
	Status string `json:"status"`
	Data   struct {
		CheckoutURL string `json:"checkout_url"`
	} `json:"data"`
}

// InitiateDeposit asks the gateway for a checkout URL tied to ref.
func (c *GatewayClient) InitiateDeposit(ctx context.Context, ref, email string, amount decimal.Decimal, callbackURL string) (string, error) {
	form := url.Values{}
	form.Set("amount", amount.String())
	form.Set("email", email)
	form.Set("tx_ref", ref)
	form.Set("callback_url", callbackURL)

	endpoint := c.baseURL + "/v1/transaction/initialize"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("payment gateway unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("payment gateway returned %d: %s", resp.StatusCode, string(body))
	}

	var out checkoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Status != "success" || out.Data.CheckoutURL == "" {
		return "", fmt.Errorf("payment gateway rejected checkout for ref %s", ref)
	}
	return out.Data.CheckoutURL, nil
}

type verifyResponse struct {
	Status string `json:"status"`
	Data   struct {
		Status string          `json:"status"`
		Amount decimal.Decimal `json:"amount"`
	} `json:"data"`
}

// Verify reports whether the referenced transaction settled and for how much.
func (c *GatewayClient) Verify(ctx context.Context, ref string) (bool, decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/v1/transaction/verify/%s", c.baseURL, url.PathEscape(ref))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, decimal.Zero, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, decimal.Zero, fmt.Errorf("payment gateway unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return false, decimal.Zero, fmt.Errorf("payment gateway returned %d: %s", resp.StatusCode, string(body))
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, decimal.Zero, err
	}
	settled := out.Status == "success" && out.Data.Status == "success"
	return settled, out.Data.Amount, nil
}
