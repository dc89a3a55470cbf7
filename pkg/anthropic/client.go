// Package anthropic wraps the official SDK behind the small surface the
// audit pipeline needs: single message creation with text and inline images.
package anthropic

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the Anthropic API operations used by the analysis service.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest is our own request type for CreateMessage.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      string
	Parts       []Part
	Temperature *float64
}

// Part is one content block of the user message: text, or an inline
// base64-encoded image.
type Part struct {
	Text string

	// ImageData and ImageMediaType are set for image parts. ImageData is
	// base64-encoded.
	ImageData      string
	ImageMediaType string
}

// TextPart builds a text content part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart builds an inline image part from base64 data.
func ImagePart(mediaType, base64Data string) Part {
	return Part{ImageData: base64Data, ImageMediaType: mediaType}
}

// MessageResponse is our own response type from CreateMessage.
type MessageResponse struct {
	ID         string
	Model      string
	Text       string
	StopReason string
	Usage      TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// LogCost logs token usage with structured zap fields.
func (u TokenUsage) LogCost(model, phase string) {
	zap.L().Info("token usage",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
	)
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates a new Anthropic client backed by the SDK.
func NewClient(apiKey string) Client {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
	}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.ImageData != "" {
			blocks = append(blocks, sdk.NewImageBlockBase64(p.ImageMediaType, p.ImageData))
			continue
		}
		blocks = append(blocks, sdk.NewTextBlock(p.Text))
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}

	var text string
	for _, b := range msg.Content {
		if b.Type == "text" {
			text += b.Text
		}
	}

	return &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Text:       text,
		StopReason: string(msg.StopReason),
		Usage: TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}
