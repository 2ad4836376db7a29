package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
)

const anthropicDefaultModel = "claude-3-5-haiku-latest"
const anthropicDefaultMaxTokens = 4096

// AnthropicProvider streams from the Anthropic Messages API. The message id
// from message_start becomes the response id; PreviousResponseId is ignored.
type AnthropicProvider struct {
	client anthropic.Client
	config ProviderConfig
}

func NewAnthropicProvider(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, &Error{Provider: ProviderAnthropic, Kind: ErrKindConfig, Message: "ANTHROPIC_API_KEY is not set"}
	}

	clientOptions := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: 10 * time.Minute}),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(clientOptions...),
		config: config,
	}, nil
}

func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

func (p *AnthropicProvider) Stream(ctx context.Context, request ChatRequest, eventChan chan<- Event) error {
	if request.PreviousResponseId != "" {
		log.Ctx(ctx).Debug().Str("provider", ProviderAnthropic).Msg("previousResponseId ignored; provider has no server-side continuation")
	}

	maxTokens := anthropicDefaultMaxTokens
	if p.config.MaxTokens > 0 {
		maxTokens = p.config.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.modelOr(anthropicDefaultModel)),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(request.Message)),
		},
	}
	if p.config.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: p.config.SystemPrompt}}
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var messageId string
	for stream.Next() {
		event := stream.Current()

		switch evt := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			messageId = evt.Message.ID

		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text == "" {
					continue
				}
				if err := send(ctx, eventChan, DeltaEvent(delta.Text)); err != nil {
					return p.wrap(err)
				}
			}

		case anthropic.MessageDeltaEvent:
			if evt.Delta.StopReason == anthropic.StopReasonRefusal {
				return &Error{Provider: ProviderAnthropic, Kind: ErrKindContentFilter, Message: fmt.Sprintf("generation stopped: %s", evt.Delta.StopReason)}
			}

		case anthropic.MessageStopEvent:
			if messageId == "" {
				return &Error{Provider: ProviderAnthropic, Kind: ErrKindParse, Message: "message_stop without a message id"}
			}
			return p.wrap(send(ctx, eventChan, DoneEvent(messageId)))
		}
	}

	if err := stream.Err(); err != nil {
		return p.wrap(err)
	}
	return &Error{Provider: ProviderAnthropic, Kind: ErrKindParse, Message: "stream ended without message_stop"}
}

func (p *AnthropicProvider) wrap(err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return classify(ProviderAnthropic, err, status, p.config.APIKey)
}
