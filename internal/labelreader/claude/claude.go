package claude

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/vbonduro/fgsamples/internal/labelreader"
)

// Reader reads labels with the Anthropic Messages API.
type Reader struct {
	client *anthropic.Client
	model  string
}

// NewReader returns a Reader for model. Options are passed to the client,
// e.g. anthropic.WithBaseURL in tests.
func NewReader(apiKey, model string, opts ...anthropic.ClientOption) *Reader {
	return &Reader{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}
}

func (c *Reader) Read(ctx context.Context, r io.Reader, mimeType string) (*labelreader.Label, error) {
	imageData, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		// A label has six short fields.
		MaxTokens: 300,
		Messages: []anthropic.Message{{
			Role: anthropic.RoleUser,
			Content: []anthropic.MessageContent{
				anthropic.NewImageMessageContent(anthropic.NewMessageContentSource(
					anthropic.MessagesContentSourceTypeBase64,
					normaliseMIME(mimeType),
					base64.StdEncoding.EncodeToString(imageData),
				)),
				anthropic.NewTextMessageContent(labelreader.Prompt),
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call claude: %w", err)
	}

	return labelreader.ParseResponse(resp.GetFirstContentText()), nil
}

// normaliseMIME maps MIME types to the values the Anthropic API accepts.
// Unknown types are sent as jpeg.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}
