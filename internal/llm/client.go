// Package llm implements the generic, OpenAI-chat-shaped LLM adapter
// described in the specification's §4.6: a single client switchable between
// a Cloud and a Local base URL, with a reachability probe ahead of each
// request and support for vision turns.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/agalue/sherpa-voice-assistant/internal/metrics"
)

// Provider selects which base URL a request is sent to.
type Provider int

const (
	Cloud Provider = iota
	Local
)

func (p Provider) String() string {
	if p == Cloud {
		return "cloud"
	}
	return "local"
}

// Message is one conversation turn. Content is either a plain string or,
// for vision turns, a []ContentPart.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one element of a vision message's content array.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL wraps a data: URL image payload.
type ImageURL struct {
	URL string `json:"url"`
}

// Config holds LLM client configuration.
type Config struct {
	CloudURL     string
	LocalURL     string
	APIKey       string
	Model        string
	SystemPrompt string
	MaxHistory   int
	MaxTokens    int
	ProbeTimeout time.Duration
	Verbose      bool
}

// Client is the generic OpenAI-chat-shaped adapter. It owns the
// conversation history (single-goroutine, read and appended by Chat on the
// caller's goroutine — see §5's ownership note) and the active Cloud/Local
// selection.
type Client struct {
	httpClient *http.Client

	cloudURL string
	localURL string
	apiKey   string
	provider Provider

	model        string
	systemPrompt string
	maxTokens    int
	maxHistory   int
	probeTimeout time.Duration
	verbose      bool

	history []Message
}

// NewClient builds a Client defaulting to the Cloud provider.
func NewClient(cfg *Config) *Client {
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 10
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 150
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 4 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cloudURL:     cfg.CloudURL,
		localURL:     cfg.LocalURL,
		apiKey:       cfg.APIKey,
		provider:     Cloud,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    maxTokens,
		maxHistory:   maxHistory,
		probeTimeout: probeTimeout,
		verbose:      cfg.Verbose,
		history:      make([]Message, 0),
	}
}

// Provider returns the currently selected provider.
func (c *Client) Provider() Provider { return c.provider }

// SetProvider switches the active provider. The caller is responsible for
// announcing the switch via TTS per §4.6.
func (c *Client) SetProvider(p Provider) { c.provider = p }

// baseURL resolves the active provider's base URL.
func (c *Client) baseURL(p Provider) string {
	if p == Cloud {
		return c.cloudURL
	}
	return c.localURL
}

// probe attempts a non-blocking TCP dial to the base URL's host, mirroring
// original_source/openai.c's reachability check ahead of every request.
func (c *Client) probe(baseURL string) bool {
	host := hostFromURL(baseURL)
	if host == "" {
		return false
	}
	conn, err := net.DialTimeout("tcp", host, c.probeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func hostFromURL(raw string) string {
	s := raw
	if idx := strings.Index(s, "://"); idx != -1 {
		s = s[idx+3:]
	}
	if idx := strings.IndexByte(s, '/'); idx != -1 {
		s = s[:idx]
	}
	if !strings.Contains(s, ":") {
		if strings.HasPrefix(raw, "https://") {
			s += ":443"
		} else {
			s += ":80"
		}
	}
	return s
}

// FallbackResult reports what happened to the provider selection during a
// Chat call, so the caller can speak the right canned notice.
type FallbackResult int

const (
	NoFallback FallbackResult = iota
	FellBackToLocal
	Unreachable
)

// Chat sends userMessage (optionally with an attached base64 image) plus the
// full conversation history, and appends the resulting turn to history on
// success.
func (c *Client) Chat(ctx context.Context, userMessage string, imageBase64 string) (reply string, fallback FallbackResult, err error) {
	provider := c.provider
	if !c.probe(c.baseURL(provider)) {
		if provider == Cloud {
			if !c.probe(c.baseURL(Local)) {
				return "", Unreachable, fmt.Errorf("llm: neither cloud nor local endpoint reachable")
			}
			provider = Local
			fallback = FellBackToLocal
			metrics.LLMFallbacksTotal.Inc()
		} else {
			return "", Unreachable, fmt.Errorf("llm: local endpoint unreachable")
		}
	}

	userMsg := Message{Role: "user"}
	if imageBase64 != "" {
		userMsg.Content = []ContentPart{
			{Type: "text", Text: userMessage},
			{Type: "image_url", ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + imageBase64}},
		}
	} else {
		userMsg.Content = userMessage
	}

	messages := make([]Message, 0, len(c.history)+2)
	messages = append(messages, Message{Role: "system", Content: c.systemPrompt})
	messages = append(messages, c.history...)
	messages = append(messages, userMsg)

	start := time.Now()
	reply, tokens, finishReason, err := c.request(ctx, provider, messages)
	metrics.LLMRequestDuration.WithLabelValues(provider.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fallback, err
	}
	metrics.LLMTokensTotal.WithLabelValues(provider.String()).Add(float64(tokens))

	if c.verbose {
		fmt.Printf("[llm] provider=%s tokens=%d finish_reason=%s\n", provider, tokens, finishReason)
	}

	c.history = append(c.history, Message{Role: "user", Content: userMessage})
	c.history = append(c.history, Message{Role: "assistant", Content: reply})
	c.trimHistory()

	if fallback == FellBackToLocal {
		c.provider = Local
	}

	return reply, fallback, nil
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *Client) request(ctx context.Context, provider Provider, messages []Message) (reply string, totalTokens int, finishReason string, err error) {
	payload := chatRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", 0, "", fmt.Errorf("llm: encode request: %w", err)
	}

	url := strings.TrimSuffix(c.baseURL(provider), "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, "", fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, "", fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, "", fmt.Errorf("llm: status %d from %s", resp.StatusCode, provider)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, "", fmt.Errorf("llm: decode response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return "", 0, "", fmt.Errorf("llm: response had no choices")
	}

	reply = strings.TrimSpace(parsed.Choices[0].Message.Content)
	if reply == "" {
		return "", 0, "", fmt.Errorf("llm: response choice had empty content")
	}

	return reply, parsed.Usage.TotalTokens, parsed.Choices[0].FinishReason, nil
}

// ClearHistory clears the conversation history.
func (c *Client) ClearHistory() {
	c.history = make([]Message, 0)
}

// trimHistory keeps only the last maxHistory user/assistant pairs, trimming
// from the oldest non-system turn (the system prompt is re-added fresh on
// every Chat call, so it is never stored in c.history).
func (c *Client) trimHistory() {
	maxMessages := c.maxHistory * 2
	if len(c.history) > maxMessages {
		c.history = c.history[len(c.history)-maxMessages:]
	}
}
