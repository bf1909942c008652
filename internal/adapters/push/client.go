package push

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Notification is one push request. Delivery is fire-and-forget; the gateway
// owns retries and device fan-out.
type Notification struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Client posts notifications to the push gateway.
type Client struct {
	httpClient *resty.Client
}

func NewClient(gatewayURL, token string) (*Client, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("push gateway URL cannot be empty")
	}

	client := resty.New().
		SetBaseURL(gatewayURL).
		SetTimeout(5 * time.Second)
	if token != "" {
		client.SetHeader("Authorization", "Bearer "+token)
	}

	log.Info().Str("gatewayURL", gatewayURL).Msg("Push gateway client configured")

	return &Client{httpClient: client}, nil
}

// Send dispatches one notification. Non-2xx is an error for the caller to log;
// nothing here retries.
func (c *Client) Send(ctx context.Context, n Notification) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(n).
		Post("/send")
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push gateway error: status %s", resp.Status())
	}
	return nil
}
