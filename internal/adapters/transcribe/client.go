package transcribe

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Client submits stored audio for transcription. The transcription service
// calls back with the result; this side only enqueues.
type Client struct {
	httpClient *resty.Client
}

func NewClient(serviceURL string) (*Client, error) {
	if serviceURL == "" {
		return nil, fmt.Errorf("transcription service URL cannot be empty")
	}

	client := resty.New().
		SetBaseURL(serviceURL).
		SetTimeout(10 * time.Second)

	log.Info().Str("serviceURL", serviceURL).Msg("Transcription client configured")

	return &Client{httpClient: client}, nil
}

type request struct {
	MessageID string `json:"messageId"`
	AudioURL  string `json:"audioUrl"`
}

// Submit enqueues one audio message for transcription.
func (c *Client) Submit(ctx context.Context, messageID, audioURL string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request{MessageID: messageID, AudioURL: audioURL}).
		Post("/transcriptions")
	if err != nil {
		return fmt.Errorf("transcription request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("transcription service error: status %s", resp.Status())
	}
	return nil
}
