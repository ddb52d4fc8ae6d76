package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ridloal/e-commerce-order-engine/internal/order/domain"
	"github.com/ridloal/e-commerce-order-engine/internal/platform/logger"
)

// Gateway transaction statuses the engine understands. Anything else is
// treated as ambiguous and the order stays unpaid.
const (
	GatewayStatusCompleted = "completed"
	GatewayStatusFailed    = "failed"
)

// ErrGatewayAmbiguous means the gateway timed out or answered something we
// cannot interpret. Callers must leave the order in its current unpaid state.
var ErrGatewayAmbiguous = errors.New("payment gateway result is ambiguous")

// PaymentGatewayClient verifies a callback's transaction reference with the
// gateway. Calls carry their own bounded timeout and never run inside a
// database transaction.
type PaymentGatewayClient interface {
	VerifyTransaction(ctx context.Context, transactionRef string) (*domain.PaymentResult, error)
}

type httpPaymentGatewayClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewHTTPPaymentGatewayClient(baseURL string, timeout time.Duration) PaymentGatewayClient {
	return &httpPaymentGatewayClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type gatewayTransactionResponse struct {
	TransactionRef string  `json:"transaction_ref"`
	Status         string  `json:"status"`
	Provider       string  `json:"provider"`
	Amount         float64 `json:"amount"`
}

func (c *httpPaymentGatewayClient) VerifyTransaction(ctx context.Context, transactionRef string) (*domain.PaymentResult, error) {
	reqURL := fmt.Sprintf("%s/api/v1/transactions/%s", c.BaseURL, transactionRef)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		logger.Error("PaymentGateway.VerifyTransaction: NewRequest failed", err, nil)
		return nil, fmt.Errorf("failed to create gateway verification request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// Timeout or transport failure: we do not know what happened.
		logger.Error("PaymentGateway.VerifyTransaction: HTTPClient.Do failed", err, fmt.Sprintf("ref: %s", transactionRef))
		return nil, fmt.Errorf("%w: %v", ErrGatewayAmbiguous, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Error(fmt.Sprintf("PaymentGateway.VerifyTransaction: gateway returned status %d", resp.StatusCode), nil, fmt.Sprintf("ref: %s", transactionRef))
		return nil, fmt.Errorf("%w: gateway returned status %d", ErrGatewayAmbiguous, resp.StatusCode)
	}

	var body gatewayTransactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		logger.Error("PaymentGateway.VerifyTransaction: decode failed", err, nil)
		return nil, fmt.Errorf("%w: unreadable gateway response", ErrGatewayAmbiguous)
	}

	if body.Status != GatewayStatusCompleted && body.Status != GatewayStatusFailed {
		return nil, fmt.Errorf("%w: unrecognized status %q", ErrGatewayAmbiguous, body.Status)
	}

	return &domain.PaymentResult{
		TransactionRef: body.TransactionRef,
		Status:         body.Status,
		Provider:       body.Provider,
		PaidAmount:     body.Amount,
		ReceivedAt:     time.Now(),
	}, nil
}
