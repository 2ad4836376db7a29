package llm

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatibleProvider streams chat completions from any endpoint that
// speaks the OpenAI chat completions protocol (vLLM, Ollama, LiteLLM, ...).
// The id of the streamed chunks becomes the response id.
type OpenAICompatibleProvider struct {
	client *openai.Client
	config ProviderConfig
}

func NewOpenAICompatibleProvider(config ProviderConfig) (Provider, error) {
	if config.BaseURL == "" {
		return nil, &Error{Provider: ProviderOpenAICompatible, Kind: ErrKindConfig, Message: "OPENAI_COMPATIBLE_BASE_URL is not set"}
	}
	if config.Model == "" {
		return nil, &Error{Provider: ProviderOpenAICompatible, Kind: ErrKindConfig, Message: "OPENAI_COMPATIBLE_MODEL is not set"}
	}

	// local servers commonly run without a key
	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = config.BaseURL

	return &OpenAICompatibleProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

func (p *OpenAICompatibleProvider) Name() string { return ProviderOpenAICompatible }

func (p *OpenAICompatibleProvider) Stream(ctx context.Context, request ChatRequest, eventChan chan<- Event) error {
	if request.PreviousResponseId != "" {
		log.Ctx(ctx).Debug().Str("provider", ProviderOpenAICompatible).Msg("previousResponseId ignored; provider has no server-side continuation")
	}

	var messages []openai.ChatCompletionMessage
	if p.config.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: p.config.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: request.Message,
	})

	req := openai.ChatCompletionRequest{
		Model:    p.config.Model,
		Messages: messages,
		Stream:   true,
	}
	if p.config.MaxTokens > 0 {
		req.MaxTokens = p.config.MaxTokens
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return p.wrap(err)
	}
	defer stream.Close()

	var responseId string
	var finishReason openai.FinishReason
	for {
		res, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return p.wrap(err)
		}

		if res.ID != "" {
			responseId = res.ID
		}
		if len(res.Choices) == 0 {
			continue
		}

		choice := res.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
		if choice.Delta.Content == "" {
			continue
		}
		if err := send(ctx, eventChan, DeltaEvent(choice.Delta.Content)); err != nil {
			return p.wrap(err)
		}
	}

	// Recv reports io.EOF for a body that closes early as well as for
	// [DONE], so only a finish reason marks a complete generation.
	switch finishReason {
	case "":
		return &Error{Provider: ProviderOpenAICompatible, Kind: ErrKindTransport, Message: "stream ended without a finish reason"}
	case openai.FinishReasonContentFilter:
		return &Error{Provider: ProviderOpenAICompatible, Kind: ErrKindContentFilter, Message: "generation stopped: content_filter"}
	}
	if responseId == "" {
		return &Error{Provider: ProviderOpenAICompatible, Kind: ErrKindParse, Message: "stream ended without a response id"}
	}
	return p.wrap(send(ctx, eventChan, DoneEvent(responseId)))
}

func (p *OpenAICompatibleProvider) wrap(err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
	} else if errors.As(err, &reqErr) {
		status = reqErr.HTTPStatusCode
	}
	return classify(ProviderOpenAICompatible, err, status, p.config.APIKey)
}
