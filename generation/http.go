package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// textKeys are tried in order for the answer text in a generate response.
var textKeys = []string{"output", "text", "result", "data", "message", "content", "generated_text", "choices.0.message.content"}

// HTTPModel calls a single-shot JSON generate endpoint guarded by OAuth2
// client credentials and a subscription key header. It never streams; the
// DirectAnswer splitter slices its answers.
type HTTPModel struct {
	url             string
	model           string
	subscriptionKey string
	options         Options
	retries         uint
	backoff         time.Duration
	client          *http.Client

	credentials *clientcredentials.Config
	mu          sync.Mutex
	tokens      oauth2.TokenSource
}

// HTTPOption configures an HTTPModel.
type HTTPOption func(*HTTPModel)

// WithCredentials enables OAuth2 client credentials.
func WithCredentials(cc *clientcredentials.Config) HTTPOption {
	return func(h *HTTPModel) {
		h.credentials = cc
	}
}

// WithSubscriptionKey sets the subscriptionKey header.
func WithSubscriptionKey(key string) HTTPOption {
	return func(h *HTTPModel) {
		h.subscriptionKey = key
	}
}

// WithRetries sets how many times a 5xx or transport failure is retried.
func WithRetries(n uint, backoff time.Duration) HTTPOption {
	return func(h *HTTPModel) {
		h.retries = n
		if backoff > 0 {
			h.backoff = backoff
		}
	}
}

// WithHTTPClient sets the client used for generate calls.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPModel) {
		if c != nil {
			h.client = c
		}
	}
}

// NewHTTPModel creates an HTTPModel posting to url.
func NewHTTPModel(url, model string, opts Options, options ...HTTPOption) *HTTPModel {
	h := &HTTPModel{
		url:     url,
		model:   model,
		options: opts,
		retries: 2,
		backoff: 500 * time.Millisecond,
		client:  http.DefaultClient,
	}
	for _, opt := range options {
		opt(h)
	}
	return h
}

type generateBody struct {
	SysPrompt   string   `json:"sys_prompt"`
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	MaxTokens   int64    `json:"max_tokens"`
	StopWords   []string `json:"stop_words"`
}

// Generate implements Model.
func (h *HTTPModel) Generate(ctx context.Context, p Prompt) (*Output, error) {
	text, err := h.Complete(ctx, p.SystemText(), Render(p.History, p.Message))
	if err != nil {
		return nil, err
	}
	return &Output{Text: text}, nil
}

// Complete implements Model.
func (h *HTTPModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(generateBody{
		SysPrompt:   system,
		Prompt:      prompt,
		Model:       h.model,
		Temperature: h.options.Temperature,
		TopP:        h.options.TopP,
		MaxTokens:   h.options.MaxTokens,
		StopWords:   h.options.Stop,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	var text string
	refreshed := false
	err = retry.Do(
		func() error {
			status, data, err := h.post(ctx, body)
			if err != nil {
				return err
			}
			if status == http.StatusUnauthorized && !refreshed && h.credentials != nil {
				refreshed = true
				h.resetToken()
				status, data, err = h.post(ctx, body)
				if err != nil {
					return err
				}
			}
			if status >= 400 {
				return &statusError{
					code: status,
					err:  fmt.Errorf("%w: status %d: %s", classifyStatus(status), status, truncate(string(data), 200)),
				}
			}
			t, ok := extractText(data)
			if !ok {
				return fmt.Errorf("%w: %w", ErrUnavailable, errNoAnswer)
			}
			text = t
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(h.retries+1),
		retry.Delay(h.backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return text, nil
}

func (h *HTTPModel) post(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.subscriptionKey != "" {
		req.Header.Set("subscriptionKey", h.subscriptionKey)
	}
	if h.credentials != nil {
		tok, err := h.token(ctx)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: token: %w", ErrUnavailable, err)
		}
		tok.SetAuthHeader(req)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return 0, nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return resp.StatusCode, data, nil
}

func (h *HTTPModel) token(ctx context.Context) (*oauth2.Token, error) {
	h.mu.Lock()
	if h.tokens == nil {
		h.tokens = h.credentials.TokenSource(context.WithoutCancel(ctx))
	}
	src := h.tokens
	h.mu.Unlock()
	return src.Token()
}

func (h *HTTPModel) resetToken() {
	h.mu.Lock()
	h.tokens = nil
	h.mu.Unlock()
}

var errNoAnswer = errors.New("no answer text in response")

type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

// retryable reports whether a generate failure is worth another attempt:
// transport failures, 429 and 5xx responses.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return !errors.Is(err, ErrBadRequest) && !errors.Is(err, errNoAnswer)
}

// extractText returns the first non-empty string among textKeys.
func extractText(data []byte) (string, bool) {
	if !gjson.ValidBytes(data) {
		return "", false
	}
	for _, key := range textKeys {
		v := gjson.GetBytes(data, key)
		if v.Type == gjson.String && v.Str != "" {
			return strings.TrimSpace(v.Str), true
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
