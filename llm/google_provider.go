package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
	"google.golang.org/genai"
)

const googleDefaultModel = "gemini-2.0-flash"

// GoogleProvider streams from the Gemini API. Gemini keeps no server-side
// conversation, so PreviousResponseId is ignored.
type GoogleProvider struct {
	client *genai.Client
	config ProviderConfig
}

func NewGoogleProvider(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, &Error{Provider: ProviderGemini, Kind: ErrKindConfig, Message: "GEMINI_API_KEY is not set"}
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	// NewClient does no network I/O for the Gemini API backend
	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, &Error{Provider: ProviderGemini, Kind: ErrKindConfig, Message: redact(err.Error(), config.APIKey), Cause: err}
	}

	return &GoogleProvider{client: client, config: config}, nil
}

func (p *GoogleProvider) Name() string { return ProviderGemini }

func (p *GoogleProvider) Stream(ctx context.Context, request ChatRequest, eventChan chan<- Event) error {
	if request.PreviousResponseId != "" {
		log.Ctx(ctx).Debug().Str("provider", ProviderGemini).Msg("previousResponseId ignored; provider has no server-side continuation")
	}

	config := &genai.GenerateContentConfig{}
	if p.config.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(p.config.SystemPrompt, genai.RoleUser)
	}
	if p.config.MaxTokens > 0 {
		config.MaxOutputTokens = int32(p.config.MaxTokens)
	}

	contents := []*genai.Content{genai.NewContentFromText(request.Message, genai.RoleUser)}
	model := p.config.modelOr(googleDefaultModel)

	var responseId string
	for result, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			return p.wrap(err)
		}

		chunk := googleChunk(result)
		if chunk.responseId != "" {
			responseId = chunk.responseId
		}
		for _, text := range chunk.texts {
			if err := send(ctx, eventChan, DeltaEvent(text)); err != nil {
				return p.wrap(err)
			}
		}
		if chunk.blocked != "" {
			return &Error{Provider: ProviderGemini, Kind: ErrKindContentFilter, Message: fmt.Sprintf("generation stopped: %s", chunk.blocked)}
		}
		if chunk.aborted != "" {
			return &Error{Provider: ProviderGemini, Kind: ErrKindServer, Message: fmt.Sprintf("generation stopped: %s", chunk.aborted)}
		}
		if chunk.finished {
			if responseId == "" {
				responseId = "gemini-" + ksuid.New().String()
			}
			return p.wrap(send(ctx, eventChan, DoneEvent(responseId)))
		}
	}

	return &Error{Provider: ProviderGemini, Kind: ErrKindParse, Message: "stream ended without a finish reason"}
}

type googleStreamChunk struct {
	texts      []string
	responseId string
	finished   bool
	// blocked is the finish or block reason when generation was stopped by
	// a safety filter rather than completing.
	blocked string
	// aborted is any other finish reason (OTHER, MALFORMED_FUNCTION_CALL,
	// ...); the generation did not complete normally.
	aborted string
}

// googleChunk extracts the text parts and termination state of one streamed
// response. Only the first candidate is considered.
func googleChunk(result *genai.GenerateContentResponse) googleStreamChunk {
	var chunk googleStreamChunk
	if result == nil {
		return chunk
	}
	chunk.responseId = result.ResponseID

	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		chunk.blocked = string(result.PromptFeedback.BlockReason)
		return chunk
	}
	if len(result.Candidates) == 0 {
		return chunk
	}

	candidate := result.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought || part.Text == "" {
				continue
			}
			chunk.texts = append(chunk.texts, part.Text)
		}
	}

	switch candidate.FinishReason {
	case "":
	case genai.FinishReasonStop, genai.FinishReasonMaxTokens:
		chunk.finished = true
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
		chunk.blocked = string(candidate.FinishReason)
	default:
		chunk.aborted = string(candidate.FinishReason)
	}
	return chunk
}

func (p *GoogleProvider) wrap(err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.Code
	} else if errors.As(err, &apiErrPtr) {
		status = apiErrPtr.Code
	}
	return classify(ProviderGemini, err, status, p.config.APIKey)
}
