package ai

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// Options controls a single generation call.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Client is the generative model client interface.
// Errors returned by Generate are always *ClassifiedError.
type Client interface {
	// Generate performs a synchronous chat completion.
	Generate(ctx context.Context, messages []Message, opts Options) (string, error)
}

type client struct {
	api    *openai.Client
	config *LLMConfig
}

// NewClient creates a Client backed by an OpenAI-compatible API.
// DeepSeek and Ollama are reached through their compatible endpoints.
func NewClient(cfg *LLMConfig) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ClassifiedError{Class: FailureConfig, Original: err}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &client{
		api:    openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

func (c *client) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	if len(messages) == 0 {
		return "", &ClassifiedError{Class: FailureConfig, Original: fmt.Errorf("empty message list")}
	}

	if opts.Temperature == 0 {
		opts.Temperature = c.config.Temperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = c.config.MaxTokens
	}

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    convertMessages(messages),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	var result string
	err := c.doWithRetry(ctx, func(callCtx context.Context) error {
		resp, err := c.api.CreateChatCompletion(callCtx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty completion response")
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", Classify(err)
	}

	return CleanResponse(result), nil
}

// doWithRetry executes fn with a per-attempt timeout, retrying only
// transient failure classes with linear backoff.
func (c *client) doWithRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		classified := Classify(err)
		if !classified.IsTransient() || attempt == c.config.MaxRetries {
			return err
		}

		wait := classified.RetryAfter
		if wait == 0 {
			wait = time.Second
		}
		wait *= time.Duration(attempt + 1)
		slog.Debug("model call failed, retrying",
			"attempt", attempt+1,
			"wait", wait,
			"class", classified.Class)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}
	return out
}

// Reasoning models wrap their scratch work in think-style tags.
var reasoningTagPattern = regexp.MustCompile(`(?is)<(think|thinking|reasoning)>.*?</(think|thinking|reasoning)>`)

// CleanResponse strips reasoning tags and collapses leftover whitespace.
// If cleaning removes everything, the original text is returned so the
// conversation never goes blank.
func CleanResponse(raw string) string {
	cleaned := reasoningTagPattern.ReplaceAllString(raw, "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return strings.TrimSpace(raw)
	}
	return cleaned
}

// SystemPrompt builds a system message.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// AssistantMessage builds an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}
