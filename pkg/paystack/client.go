// Package paystack is a minimal client for the Paystack API, covering the
// server-side "verify transaction by reference" call the settlement engine
// depends on.
package paystack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Provider-side transaction statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPending = "pending"
	StatusOngoing = "ongoing"
)

// Client is a client for the Paystack API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new Paystack API client.
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		BaseURL:   baseURL,
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Metadata is the opaque metadata attached at checkout time and echoed back
// by the provider, used for identity and target cross-validation.
type Metadata struct {
	AccountID string `json:"account_id"`
	Target    string `json:"target"`
	GroupID   string `json:"group_id"`
	PackageID string `json:"package_id"`
}

// Verification is the provider-issued fact about a charge.
type Verification struct {
	Reference     string
	Status        string
	Amount        int64 // kobo
	CustomerEmail string
	Metadata      Metadata
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
		Metadata Metadata `json:"metadata"`
	} `json:"data"`
}

// APIError represents a non-2xx response from the Paystack API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack api error: status %d: %s", e.StatusCode, e.Message)
}

// VerifyTransaction calls GET /transaction/verify/{reference} and returns the
// provider's view of the charge. A 404 maps to a failed verification rather
// than an error so unknown references settle as VerificationFailed.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Verification, error) {
	endpoint := fmt.Sprintf("%s/transaction/verify/%s", c.BaseURL, url.PathEscape(reference))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paystack verify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &Verification{Reference: reference, Status: StatusFailed}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: body.Message}
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("paystack verify: decode response: %w", err)
	}
	return &Verification{
		Reference:     vr.Data.Reference,
		Status:        vr.Data.Status,
		Amount:        vr.Data.Amount,
		CustomerEmail: vr.Data.Customer.Email,
		Metadata:      vr.Data.Metadata,
	}, nil
}
