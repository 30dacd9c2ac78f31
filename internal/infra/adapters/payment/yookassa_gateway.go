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
	"time"

	"github.com/google/uuid"

	"telegram-tarot-miniapp/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*YooKassaGateway)(nil)

const defaultAPIURL = "https://api.yookassa.ru/v3"

// YooKassaGateway talks to the provider's REST API with shop-id/secret
// basic auth. Requests carry an Idempotence-Key so provider-side retries
// of CreatePayment cannot double-charge.
type YooKassaGateway struct {
	shopID    string
	secretKey string
	apiURL    string
	client    *http.Client
}

func NewYooKassaGateway(shopID, secretKey string, timeout time.Duration) (*YooKassaGateway, error) {
	if shopID == "" || secretKey == "" {
		return nil, errors.New("yookassa shop id and secret key required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &YooKassaGateway{
		shopID:    shopID,
		secretKey: secretKey,
		apiURL:    defaultAPIURL,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

func (g *YooKassaGateway) Name() string { return "yookassa" }

type createPaymentRequest struct {
	Amount struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
	Capture      bool `json:"capture"`
	Confirmation struct {
		Type      string `json:"type"`
		ReturnURL string `json:"return_url"`
	} `json:"confirmation"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
}

type paymentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Paid         bool   `json:"paid"`
	Confirmation struct {
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
	Metadata map[string]string `json:"metadata"`
}

func (g *YooKassaGateway) CreatePayment(ctx context.Context, amountValue, currency, description, returnURL string, metadata map[string]string) (*adapter.CreatedPayment, error) {
	reqBody := createPaymentRequest{Capture: true, Description: description, Metadata: metadata}
	reqBody.Amount.Value = amountValue
	reqBody.Amount.Currency = currency
	reqBody.Confirmation.Type = "redirect"
	reqBody.Confirmation.ReturnURL = returnURL

	var resp paymentResponse
	if err := g.do(ctx, http.MethodPost, "/payments", &reqBody, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, errors.New("yookassa: response without payment id")
	}
	return &adapter.CreatedPayment{
		ProviderID:      resp.ID,
		ConfirmationURL: resp.Confirmation.ConfirmationURL,
	}, nil
}

func (g *YooKassaGateway) GetPayment(ctx context.Context, providerID string) (*adapter.ProviderPayment, error) {
	var resp paymentResponse
	if err := g.do(ctx, http.MethodGet, "/payments/"+providerID, nil, &resp); err != nil {
		return nil, err
	}
	return &adapter.ProviderPayment{
		ID:       resp.ID,
		Status:   resp.Status,
		Paid:     resp.Paid,
		Metadata: resp.Metadata,
	}, nil
}

func (g *YooKassaGateway) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, g.apiURL+path, &buf)
	if err != nil {
		return err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(g.shopID + ":" + g.secretKey))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Idempotence-Key", uuid.NewString())
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("yookassa http %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
