package llm

import (
	"context"
	"fmt"
	"io"
	"iter"

	"google.golang.org/genai"
)

// GeminiConfig holds Gemini client configuration.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// GeminiProvider implements Provider on the Google Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini-backed provider.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash-lite"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return &GeminiProvider{client: client, model: cfg.Model}, nil
}

func (p *GeminiProvider) contents(req *Request) []*genai.Content {
	out := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		parts := make([]*genai.Part, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			if len(part.Data) > 0 {
				parts = append(parts, genai.NewPartFromBytes(part.Data, part.MIME))
			} else {
				parts = append(parts, genai.NewPartFromText(part.Text))
			}
		}
		role := genai.RoleUser
		if msg.Role == RoleModel {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromParts(parts, genai.Role(role)))
	}
	return out
}

func (p *GeminiProvider) config(req *Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(req.Temperature)
	}
	return cfg
}

// Stream starts a streaming generation against the Gemini API.
func (p *GeminiProvider) Stream(ctx context.Context, req *Request) (Stream, error) {
	seq := p.client.Models.GenerateContentStream(ctx, p.model, p.contents(req), p.config(req))
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop}, nil
}

// Complete runs a non-streaming generation.
func (p *GeminiProvider) Complete(ctx context.Context, req *Request) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, p.contents(req), p.config(req))
	if err != nil {
		return "", fmt.Errorf("gemini: generation failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: empty response")
	}
	return resp.Text(), nil
}

type geminiStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
	done bool
}

func (s *geminiStream) Next() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		resp, err, ok := s.next()
		if !ok {
			s.done = true
			return "", io.EOF
		}
		if err != nil {
			s.done = true
			return "", fmt.Errorf("gemini: stream failed: %w", err)
		}
		text := resp.Text()
		if text == "" {
			// Some chunks carry only metadata.
			continue
		}
		return text, nil
	}
}

func (s *geminiStream) Close() {
	s.done = true
	s.stop()
}
