package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434)
	BaseURL string

	// Model is the model name to use for chat completions (default: gemma3:4b)
	Model string

	// Timeout is the request timeout duration (default: 120s). Streaming
	// responses must finish within this window.
	Timeout time.Duration
}

// OllamaProvider implements Provider against a local Ollama server. It is
// the offline fallback when no Gemini API key is configured.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaProvider creates an Ollama-backed provider.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "gemma3:4b"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OllamaProvider{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// chatMessage is one message in the /api/chat request body.
type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// chatRequest is the request body for the /api/chat endpoint.
type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// chatResponse is one NDJSON line of a streaming /api/chat response.
type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func (p *OllamaProvider) buildBody(req *Request, stream bool) ([]byte, error) {
	msgs := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		cm := chatMessage{Role: "user"}
		if m.Role == RoleModel {
			cm.Role = "assistant"
		}
		for _, part := range m.Parts {
			if len(part.Data) > 0 {
				// Ollama only understands images among binary inputs;
				// audio and video are dropped here and described in text
				// by the caller.
				cm.Images = append(cm.Images, base64.StdEncoding.EncodeToString(part.Data))
				continue
			}
			if cm.Content != "" && part.Text != "" {
				cm.Content += "\n"
			}
			cm.Content += part.Text
		}
		msgs = append(msgs, cm)
	}

	body := chatRequest{Model: p.model, Messages: msgs, Stream: stream}
	if req.Temperature > 0 {
		body.Options = map[string]any{"temperature": req.Temperature}
	}
	return json.Marshal(body)
}

// Stream starts a streaming chat completion.
func (p *OllamaProvider) Stream(ctx context.Context, req *Request) (Stream, error) {
	body, err := p.buildBody(req, true)
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: unexpected status %d", resp.StatusCode)
	}

	return &ollamaStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

// Complete runs a non-streaming chat completion.
func (p *OllamaProvider) Complete(ctx context.Context, req *Request) (string, error) {
	body, err := p.buildBody(req, false)
	if err != nil {
		return "", fmt.Errorf("ollama: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: unexpected status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollama: failed to decode response: %w", err)
	}
	return out.Message.Content, nil
}

type ollamaStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *ollamaStream) Next() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		if !s.scanner.Scan() {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				return "", fmt.Errorf("ollama: stream read failed: %w", err)
			}
			return "", io.EOF
		}

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			s.done = true
			return "", fmt.Errorf("ollama: malformed stream line: %w", err)
		}
		if chunk.Done && chunk.Message.Content == "" {
			s.done = true
			return "", io.EOF
		}
		if chunk.Message.Content == "" {
			continue
		}
		if chunk.Done {
			s.done = true
		}
		return chunk.Message.Content, nil
	}
}

func (s *ollamaStream) Close() {
	s.done = true
	s.body.Close()
}
