// Package groq implements the LLM roles of the pipeline against the Groq
// OpenAI-compatible chat completions API.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deepscout/deepscout/internal/prompts"
	"github.com/deepscout/deepscout/internal/research"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultModel   = "llama-3.3-70b-versatile"
)

// Config controls the Groq client.
type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
	// Model selects the chat model (default llama-3.3-70b-versatile).
	Model       string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Client talks to the chat completions endpoint. It implements Synthesizer,
// QueryPlanner, and Slugger.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New creates a Groq client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("groq: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: cfg.HTTPClient, logger: cfg.Logger}, nil
}

var (
	_ research.Synthesizer  = (*Client)(nil)
	_ research.QueryPlanner = (*Client)(nil)
	_ research.Slugger      = (*Client)(nil)
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Synthesize sends a system/user prompt pair and returns the completion.
func (c *Client) Synthesize(ctx context.Context, system, user string) (string, error) {
	answer, err := c.chat(ctx, system, user, c.cfg.Temperature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", research.ErrSynthesisFailed, err)
	}
	return answer, nil
}

// Plan asks for n diversified search queries and parses them one per line.
// Numbering and bullet prefixes in the model output are tolerated. The result
// may hold fewer than n queries; the caller decides how to pad.
func (c *Client) Plan(ctx context.Context, question string, n int) ([]string, error) {
	raw, err := c.chat(ctx, prompts.QueryDiversificationSystem, prompts.QueryGeneration(question, n), c.cfg.Temperature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", research.ErrPlanningFailed, err)
	}

	queries := parseQueryList(raw, n)
	c.logger.Debug("query plan generated",
		zap.Int("requested", n),
		zap.Int("parsed", len(queries)))
	return queries, nil
}

// Slug asks the model to name the run. Temperature is pinned to zero so the
// same question maps to the same name. The caller still sanitizes the result.
func (c *Client) Slug(ctx context.Context, question string) (string, error) {
	raw, err := c.chat(ctx, prompts.SlugSystem, prompts.SlugRequest(question), 0)
	if err != nil {
		return "", fmt.Errorf("generate slug: %w", err)
	}
	return strings.TrimSpace(raw), nil
}

func (c *Client) chat(ctx context.Context, system, user string, temperature float64) (string, error) {
	msgs := make([]message, 0, 2)
	if system != "" {
		msgs = append(msgs, message{Role: "system", Content: system})
	}
	msgs = append(msgs, message{Role: "user", Content: user})

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat completions status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat completions error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completions returned no choices")
	}

	c.logger.Debug("chat completion finished",
		zap.String("model", c.cfg.Model),
		zap.Duration("dur", time.Since(start)))
	return parsed.Choices[0].Message.Content, nil
}

// parseQueryList extracts up to n queries from a one-per-line model answer,
// stripping list markers the model tends to add despite instructions.
func parseQueryList(raw string, n int) []string {
	var queries []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• \t")
		line = trimNumberPrefix(line)
		line = strings.Trim(line, `"`)
		if line == "" {
			continue
		}
		queries = append(queries, line)
		if len(queries) == n {
			break
		}
	}
	return queries
}

// trimNumberPrefix removes leading "1. " / "2) " style markers.
func trimNumberPrefix(line string) string {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) {
		return line
	}
	if line[i] == '.' || line[i] == ')' {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}
