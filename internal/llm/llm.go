// Package llm talks to an OpenAI-compatible chat completions endpoint to
// summarize a target's feedback and to judge whether new feedback adds
// anything to an existing summary.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"placewatch/internal/model"
	"placewatch/internal/retry"
	"placewatch/internal/textutil"
)

const (
	completionsPath = "/chat/completions"
	maxErrorBody    = 512

	summaryItemRunes = 1000
	noveltyItems     = 10
	noveltyItemRunes = 200
	noveltyMinLength = 20
)

// ErrEmptyResponse is returned when the endpoint answers without content.
var ErrEmptyResponse = errors.New("empty completion")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config points the client at an endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Retry   retry.Policy
}

// Client is a chat completions client.
type Client struct {
	cfg  Config
	http HTTPClient
	log  *slog.Logger
}

// New creates a Client. A nil httpClient uses one with the given timeout.
func New(cfg Config, httpClient HTTPClient, timeout time.Duration, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = retry.NoRetry
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: httpClient, log: log}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// StatusError is a non-2xx answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion status %d: %s", e.Code, e.Body)
}

// retryable reports whether the status is worth another attempt.
func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Complete sends a single user prompt and returns the trimmed answer.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	body, err := json.Marshal(request{
		Model:       c.cfg.Model,
		Messages:    []message{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	return retry.DoValue(ctx, c.cfg.Retry, func(ctx context.Context) (string, error) {
		out, err := c.send(ctx, body)
		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			return "", retry.Permanent(err)
		}
		if errors.Is(err, ErrEmptyResponse) {
			return "", retry.Permanent(err)
		}
		return out, err
	})
}

func (c *Client) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(r.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	out := strings.TrimSpace(r.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// Summarize writes a descriptive profile of a place from a sample of its
// feedback.
func (c *Client) Summarize(ctx context.Context, items []model.FeedbackItem, placeName string) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	prompt := "Write a three paragraph description of the place \"" + placeName +
		"\" based on the reviews below: what kind of place it is, its strengths and weaknesses, " +
		"and notable practical details. Use plain sentences and reply with the text only.\n\n" +
		FormatItems(items)

	out, err := c.Complete(ctx, prompt, 500, 0.3)
	if err != nil {
		return "", fmt.Errorf("summarize %q: %w", placeName, err)
	}
	return out, nil
}

// HasNewInfo asks whether texts mention something important the summary
// does not cover. Only the first few substantive texts are sent.
func (c *Client) HasNewInfo(ctx context.Context, summary string, texts []string) (bool, error) {
	var picked []string
	for _, t := range texts {
		if len(picked) == noveltyItems {
			break
		}
		if textutil.Length(t) > noveltyMinLength {
			picked = append(picked, textutil.Truncate(t, noveltyItemRunes))
		}
	}
	if len(picked) == 0 {
		return false, nil
	}

	prompt := "Existing summary of a place:\n\"" + summary + "\"\n\nNew reviews:\n" +
		strings.Join(picked, "\n---\n") +
		"\n\nDo the new reviews mention something important that the summary does not reflect? Answer only YES or NO."

	out, err := c.Complete(ctx, prompt, 10, 0.1)
	if err != nil {
		return false, fmt.Errorf("novelty check: %w", err)
	}
	c.log.Debug("novelty answer", "answer", out)
	return IsAffirmative(out), nil
}

// IsAffirmative reads a YES/NO answer. Spanish "SI" and "SÍ" count as yes.
func IsAffirmative(answer string) bool {
	a := strings.ToUpper(strings.TrimSpace(answer))
	return strings.HasPrefix(a, "YES") || strings.HasPrefix(a, "SI") || strings.HasPrefix(a, "SÍ")
}

// FormatItems renders items as "[rating★] text" blocks separated by "---".
func FormatItems(items []model.FeedbackItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		rating := "?"
		if it.Rating != nil {
			rating = fmt.Sprintf("%g", *it.Rating)
		}
		parts = append(parts, fmt.Sprintf("[%s★] %s", rating, textutil.Truncate(textutil.Clean(it.Text), summaryItemRunes)))
	}
	return strings.Join(parts, "\n---\n")
}
