// Package mcp talks to an OpenAI-compatible chat completion endpoint in
// streaming mode. Incremental deltas are fed to a stream.Processor, which
// assembles the annotated transcript; reasoning deltas and content deltas
// arrive on separate channels.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"transformerbot/config"
	"transformerbot/stream"
)

const systemPrompt = "You are a helpful assistant that uses Chain of Thought reasoning to solve problems."

// ErrAllModelsFailed is returned when both the primary and the fallback
// model endpoint failed.
var ErrAllModelsFailed = errors.New("all available models failed")

// Client calls a primary model endpoint and switches to the fallback on
// connection failures. The HTTP transport is reused across calls.
type Client struct {
	primary  config.ModelConfig
	fallback config.ModelConfig
	current  config.ModelConfig
	log      zerolog.Logger

	httpClient *http.Client
}

// New builds a client from the primary and (possibly empty) fallback model
// settings.
func New(primary, fallback config.ModelConfig, log zerolog.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &Client{
		primary:  primary,
		fallback: fallback,
		current:  primary,
		log:      log,
		// No overall client timeout: a streaming completion legitimately
		// runs for minutes. Cancellation comes from the request context.
		httpClient: &http.Client{Transport: transport},
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chunkDelta carries one streamed delta. Reasoning arrives as "reasoning"
// or "reasoning_content" depending on the provider.
type chunkDelta struct {
	Content          string `json:"content"`
	Reasoning        string `json:"reasoning"`
	ReasoningContent string `json:"reasoning_content"`
}

type chatChunk struct {
	Choices []struct {
		Delta chunkDelta `json:"delta"`
	} `json:"choices"`
}

// SendPrompt streams a completion for the prompt through proc and returns
// the assembled transcript. On a connection failure with the primary model
// the fallback is tried once; a mid-stream failure flushes the processor and
// propagates.
func (c *Client) SendPrompt(ctx context.Context, prompt string, proc *stream.Processor) (string, error) {
	transcript, err := c.streamOnce(ctx, prompt, proc)
	if err == nil {
		return transcript, nil
	}
	if proc.Phase() != stream.PhaseIdle {
		// The stream broke after producing output; the transcript is not
		// recoverable by switching models.
		return transcript, err
	}
	if c.fallback.Name == "" || c.current.Name == c.fallback.Name {
		return "", err
	}

	c.log.Warn().Err(err).Msg("primary model unavailable, switching to fallback")
	c.current = c.fallback
	transcript, ferr := c.streamOnce(ctx, prompt, proc)
	if ferr != nil {
		c.log.Error().Err(ferr).Msg("fallback model failed too")
		return "", fmt.Errorf("%w: primary: %v, fallback: %v", ErrAllModelsFailed, err, ferr)
	}
	return transcript, nil
}

func (c *Client) streamOnce(ctx context.Context, prompt string, proc *stream.Processor) (string, error) {
	if c.current.APIKey == "" {
		return "", fmt.Errorf("model API key not configured")
	}

	body, err := json.Marshal(chatRequest{
		Model: c.current.Name,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Stream:    true,
		MaxTokens: 4000,
	})
	if err != nil {
		return "", fmt.Errorf("failed to serialize request: %w", err)
	}

	url := strings.TrimSuffix(c.current.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.current.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("model API error (status %d): %s", resp.StatusCode, string(msg))
	}

	return c.consumeStream(resp.Body, proc)
}

// consumeStream reads the SSE body line by line, forwarding each delta to
// the processor. The distinguished [DONE] event terminates the stream.
func (c *Client) consumeStream(body io.Reader, proc *stream.Processor) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return proc.Finish(), nil
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			c.log.Debug().Err(err).Msg("skipping unparseable stream chunk")
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		reasoning := delta.Reasoning
		if reasoning == "" {
			reasoning = delta.ReasoningContent
		}
		if reasoning != "" {
			proc.Ingest(stream.Fragment{Channel: stream.ChannelReasoning, Text: reasoning})
		}
		if delta.Content != "" {
			proc.Ingest(stream.Fragment{Channel: stream.ChannelAnswer, Text: delta.Content})
		}
	}

	if err := scanner.Err(); err != nil {
		// Flush what arrived and close any open thinking marker; callers
		// must not assume a well-formed transcript here.
		transcript := proc.Abort()
		return transcript, fmt.Errorf("error processing stream: %w", err)
	}
	// EOF without [DONE]: treat as a normal end of stream.
	return proc.Finish(), nil
}
