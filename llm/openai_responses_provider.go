package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

const openaiDefaultModel = "gpt-4o-mini"

// OpenAIResponsesProvider streams from the OpenAI Responses API. It is the
// only provider with server-side continuation: PreviousResponseId maps to
// previous_response_id.
type OpenAIResponsesProvider struct {
	client openai.Client
	config ProviderConfig
}

func NewOpenAIResponsesProvider(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, &Error{Provider: ProviderOpenAI, Kind: ErrKindConfig, Message: "OPENAI_API_KEY is not set"}
	}

	httpClient := &http.Client{Timeout: 10 * time.Minute}
	clientOptions := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(httpClient),
		// a retried stream could duplicate output already forwarded
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAIResponsesProvider{
		client: openai.NewClient(clientOptions...),
		config: config,
	}, nil
}

func (p *OpenAIResponsesProvider) Name() string { return ProviderOpenAI }

func (p *OpenAIResponsesProvider) Stream(ctx context.Context, request ChatRequest, eventChan chan<- Event) error {
	params := responses.ResponseNewParams{
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(request.Message),
		},
		Model: openai.ChatModel(p.config.modelOr(openaiDefaultModel)),
	}
	if p.config.SystemPrompt != "" {
		params.Instructions = openai.String(p.config.SystemPrompt)
	}
	if request.PreviousResponseId != "" {
		params.PreviousResponseID = openai.String(request.PreviousResponseId)
	}
	if p.config.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(p.config.MaxTokens))
	}

	stream := p.client.Responses.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		data := stream.Current()

		switch data.AsAny().(type) {
		case responses.ResponseTextDeltaEvent:
			delta := data.AsResponseOutputTextDelta()
			if delta.Delta == "" {
				continue
			}
			if err := send(ctx, eventChan, DeltaEvent(delta.Delta)); err != nil {
				return p.wrap(err)
			}

		case responses.ResponseCompletedEvent:
			completed := data.AsResponseCompleted()
			if completed.Response.ID == "" {
				return &Error{Provider: ProviderOpenAI, Kind: ErrKindParse, Message: "response.completed without a response id"}
			}
			return p.wrap(send(ctx, eventChan, DoneEvent(completed.Response.ID)))

		case responses.ResponseFailedEvent:
			failed := data.AsResponseFailed()
			return &Error{
				Provider: ProviderOpenAI,
				Kind:     ErrKindServer,
				Message:  redact(fmt.Sprintf("response failed: %s", failed.Response.Error.Message), p.config.APIKey),
			}

		case responses.ResponseIncompleteEvent:
			incomplete := data.AsResponseIncomplete()
			kind := ErrKindServer
			if incomplete.Response.IncompleteDetails.Reason == "content_filter" {
				kind = ErrKindContentFilter
			}
			return &Error{
				Provider: ProviderOpenAI,
				Kind:     kind,
				Message:  fmt.Sprintf("response incomplete: %s", incomplete.Response.IncompleteDetails.Reason),
			}

		case responses.ResponseErrorEvent:
			errEvent := data.AsError()
			return &Error{
				Provider: ProviderOpenAI,
				Kind:     ErrKindServer,
				Message:  redact(fmt.Sprintf("stream error %s: %s", errEvent.Code, errEvent.Message), p.config.APIKey),
			}
		}
	}

	if err := stream.Err(); err != nil {
		return p.wrap(err)
	}
	return &Error{Provider: ProviderOpenAI, Kind: ErrKindParse, Message: "stream ended without response.completed"}
}

func (p *OpenAIResponsesProvider) wrap(err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return classify(ProviderOpenAI, err, status, p.config.APIKey)
}
