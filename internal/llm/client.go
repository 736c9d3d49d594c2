// Package llm wraps an OpenAI-compatible endpoint for embeddings and the
// knowledge-base interpretation step.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse is returned when the endpoint answers without content.
var ErrEmptyResponse = errors.New("llm returned no content")

// InterpreterPrompt instructs the chat model to answer only from the
// retrieved knowledge-base text.
const InterpreterPrompt = `You answer customer support questions using ONLY the search results provided.

Rules:
- Use only facts stated in the search results. Do not add outside knowledge.
- If the results do not answer the question, say that the information is not available.
- Keep the answer short and direct. Use a list when there are several items.
- Mention names, numbers and dates exactly as written in the results.`

// Config holds configuration for creating a Client.
type Config struct {
	APIKey         string
	BaseURL        string // empty uses the OpenAI default
	ChatModel      string
	EmbeddingModel string
	EmbeddingDims  int
}

// Client provides embeddings and chat completions.
type Client struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.ChatModel == "" {
		return nil, fmt.Errorf("chat model is required")
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = string(openai.SmallEmbedding3)
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Dimensions returns the configured embedding size.
func (c *Client) Dimensions() int { return c.cfg.EmbeddingDims }

// Embed returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(c.cfg.EmbeddingModel),
		Input:      texts,
		Dimensions: c.cfg.EmbeddingDims,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("create embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

// Interpret rewrites retrieved knowledge-base text into an answer to
// question, grounded strictly in that text.
func (c *Client) Interpret(ctx context.Context, question, searchResults string) (string, error) {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: InterpreterPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("User asked: %q\n\nSearch results: %s", question, searchResults)},
		},
	})
	if err != nil {
		c.logger.Warn("interpretation request failed", "model", c.cfg.ChatModel, "elapsed", time.Since(start), "error", err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("interpretation completed",
		"model", c.cfg.ChatModel,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"elapsed", time.Since(start))
	return resp.Choices[0].Message.Content, nil
}
