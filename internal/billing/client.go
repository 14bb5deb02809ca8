package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"nimbuschat/backend/internal/config"
)

const maxErrorBodyBytes = 8 * 1024

var ErrMissingAccessToken = errors.New("billing access token is not configured")

// Subscription is the slice of the billing provider's subscription object the
// auth bridge cares about.
type Subscription struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ProductID string `json:"product_id"`
}

type listSubscriptionsResponse struct {
	Items []Subscription `json:"items"`
}

// SubscriptionLookup answers whether a customer currently holds an active
// subscription.
type SubscriptionLookup interface {
	ActiveSubscription(ctx context.Context, externalCustomerID string) (*Subscription, error)
}

type Client struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
}

func NewClient(cfg config.Config, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return Client{
		accessToken: strings.TrimSpace(cfg.BillingAccessToken),
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BillingBaseURL), "/"),
		httpClient:  httpClient,
	}
}

// ActiveSubscription returns the customer's active subscription, or nil when
// there is none.
func (c Client) ActiveSubscription(ctx context.Context, externalCustomerID string) (*Subscription, error) {
	if c.accessToken == "" {
		return nil, ErrMissingAccessToken
	}
	externalCustomerID = strings.TrimSpace(externalCustomerID)
	if externalCustomerID == "" {
		return nil, errors.New("external customer id is required")
	}

	query := url.Values{}
	query.Set("external_customer_id", externalCustomerID)
	query.Set("active", "true")
	query.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/subscriptions?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build subscriptions request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request subscriptions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("billing returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed listSubscriptionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode subscriptions response: %w", err)
	}

	if len(parsed.Items) == 0 {
		return nil, nil
	}
	subscription := parsed.Items[0]
	return &subscription, nil
}
