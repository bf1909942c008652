package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Client talks to the channel provider's HTTP API. The engine only needs the
// media-download endpoint and plain binary fetches for profile pictures.
type Client struct {
	httpClient *resty.Client
	baseURL    string
}

func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("channel API baseURL cannot be empty")
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second)

	log.Info().Str("baseURL", baseURL).Msg("Channel provider client configured")

	return &Client{httpClient: client, baseURL: baseURL}, nil
}

// DownloadMedia fetches the binary content of a message from the provider.
// The returned data is the provider's base64 payload as-is (possibly with a
// data-URL prefix); decoding is the media pipeline's concern.
func (c *Client) DownloadMedia(ctx context.Context, instanceID, apiToken, messageID string) (string, string, string, error) {
	var result mediaDownloadResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("token", apiToken).
		SetBody(map[string]string{"messageId": messageID}).
		SetResult(&result).
		Post(fmt.Sprintf("/instances/%s/media/download", instanceID))
	if err != nil {
		return "", "", "", fmt.Errorf("media download request failed: %w", err)
	}
	if resp.IsError() {
		return "", "", "", fmt.Errorf("media download error: status %s", resp.Status())
	}
	if result.Data == "" {
		return "", "", "", fmt.Errorf("media download returned empty data for message %s", messageID)
	}
	return result.Data, result.Mimetype, result.FileName, nil
}

// FetchPicture downloads a profile/group picture from a provider-hosted URL.
func (c *Client) FetchPicture(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("picture download request failed: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("picture download error: status %s", resp.Status())
	}
	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return resp.Body(), contentType, nil
}
