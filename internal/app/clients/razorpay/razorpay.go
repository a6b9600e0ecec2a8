// Package razorpay is a minimal client for Razorpay subscriptions plus the
// checkout signature check.
package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.razorpay.com"

type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

func New(baseURL, keyID, keySecret string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		http:      &http.Client{Timeout: timeout},
	}
}

// KeyID is the public key the checkout widget needs.
func (c *Client) KeyID() string { return c.keyID }

// APIError is Razorpay's error envelope.
type APIError struct {
	Status      int    `json:"-"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Field       string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("razorpay: %d %s: %s", e.Status, e.Code, e.Description)
}

type SubscriptionRequest struct {
	PlanID         string            `json:"plan_id"`
	TotalCount     int               `json:"total_count"`
	Quantity       int               `json:"quantity,omitempty"`
	CustomerNotify int               `json:"customer_notify"`
	Notes          map[string]string `json:"notes,omitempty"`
}

type Subscription struct {
	ID       string `json:"id"`
	PlanID   string `json:"plan_id"`
	Status   string `json:"status"`
	ShortURL string `json:"short_url,omitempty"`
}

// CreateSubscription creates a subscription for a plan.
func (c *Client) CreateSubscription(ctx context.Context, req SubscriptionRequest) (Subscription, error) {
	if req.TotalCount == 0 {
		req.TotalCount = 12
	}
	var sub Subscription
	err := c.post(ctx, "/v1/subscriptions", req, &sub)
	return sub, err
}

// CancelSubscription cancels immediately, or at the end of the billing
// cycle when atCycleEnd is set.
func (c *Client) CancelSubscription(ctx context.Context, id string, atCycleEnd bool) (Subscription, error) {
	flag := 0
	if atCycleEnd {
		flag = 1
	}
	var sub Subscription
	err := c.post(ctx, "/v1/subscriptions/"+url.PathEscape(id)+"/cancel", map[string]int{"cancel_at_cycle_end": flag}, &sub)
	return sub, err
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("razorpay %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env struct {
			Error APIError `json:"error"`
		}
		_ = json.Unmarshal(raw, &env)
		env.Error.Status = resp.StatusCode
		if env.Error.Description == "" {
			env.Error.Description = strings.TrimSpace(string(raw))
		}
		return &env.Error
	}
	return json.Unmarshal(raw, out)
}

// SignPayment returns hex HMAC-SHA256(secret, paymentID|subscriptionID),
// the value Razorpay checkout hands back as razorpay_signature.
func SignPayment(secret, paymentID, subscriptionID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(paymentID + "|" + subscriptionID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPayment reports whether signature matches SignPayment in constant time.
func VerifyPayment(secret, paymentID, subscriptionID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(SignPayment(secret, paymentID, subscriptionID)), []byte(signature))
}
