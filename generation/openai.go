package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
)

// OpenAI streams answers from an OpenAI-compatible chat completions API.
type OpenAI struct {
	client  openai.Client
	model   string
	options Options
}

// Options are the sampling parameters sent with every request. Zero values
// are left to the backend.
type Options struct {
	Temperature float64  `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	MaxTokens   int64    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Stop        []string `json:"stop_words,omitempty" yaml:"stop_words,omitempty"`
}

// NewOpenAI creates an OpenAI model. An empty baseURL uses the public API.
func NewOpenAI(apiKey, baseURL, model string, opts Options) *OpenAI {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{
		client:  openai.NewClient(reqOpts...),
		model:   model,
		options: opts,
	}
}

func (o *OpenAI) params(system string, history []protocol.Turn, message string) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}
	for _, t := range history {
		switch t.Role {
		case protocol.RoleUser:
			msgs = append(msgs, openai.UserMessage(t.Content))
		case protocol.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(message))

	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: msgs,
	}
	if o.options.Temperature > 0 {
		p.Temperature = openai.Float(o.options.Temperature)
	}
	if o.options.TopP > 0 {
		p.TopP = openai.Float(o.options.TopP)
	}
	if o.options.MaxTokens > 0 {
		p.MaxTokens = openai.Int(o.options.MaxTokens)
	}
	if len(o.options.Stop) > 0 {
		p.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: o.options.Stop}
	}
	return p
}

// Generate implements Model. The request is sent lazily on the first pull
// of the returned stream.
func (o *OpenAI) Generate(ctx context.Context, p Prompt) (*Output, error) {
	params := o.params(p.SystemText(), p.History, p.Message)

	stream := Once(func(yield func(string, error) bool) {
		s := o.client.Chat.Completions.NewStreaming(ctx, params)
		defer s.Close()

		for s.Next() {
			chunk := s.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if !yield(chunk.Choices[0].Delta.Content, nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield("", classifyOpenAI(err))
		}
	})
	return &Output{Stream: stream}, nil
}

// Complete implements Model with a single non-streaming call.
func (o *OpenAI) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, o.params(system, nil, prompt))
	if err != nil {
		return "", classifyOpenAI(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func classifyOpenAI(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", classifyStatus(apiErr.StatusCode), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// classifyStatus maps an HTTP status to a capability error class.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return ErrTimeout
	case code == http.StatusTooManyRequests, code >= 500:
		return ErrUnavailable
	case code >= 400:
		return ErrBadRequest
	default:
		return ErrUnavailable
	}
}
