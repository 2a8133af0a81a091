// Package openaicompat adapts any OpenAI-compatible chat completions
// endpoint. It serves both api.openai.com and Scaleway's EU-hosted
// inference service, which speaks the same wire format.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/httputil"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/provider"
)

type Adapter struct {
	name         string
	apiKey       string
	baseURL      string
	defaultModel string
	client       *http.Client
}

// New builds an adapter for an OpenAI-compatible endpoint. name is the
// registry name the adapter answers to ("openai", "scaleway", ...).
func New(name, apiKey, baseURL, defaultModel string) *Adapter {
	return &Adapter{
		name:         name,
		apiKey:       apiKey,
		baseURL:      baseURL,
		defaultModel: defaultModel,
		client:       httputil.DefaultClient(),
	}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{Text: true}
}

func (a *Adapter) Generate(ctx context.Context, prompt, model string) (*provider.Generation, error) {
	if a.apiKey == "" {
		return nil, &domain.ProviderConfigError{Provider: a.name, Reason: "missing API key"}
	}
	if model == "" {
		model = a.defaultModel
	}

	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.name, Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.name, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.name, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &domain.ProviderAPIError{
			Provider: a.name,
			Err:      fmt.Errorf("status=%d body=%s", resp.StatusCode, string(bodyBytes)),
		}
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.name, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(chatResp.Choices) == 0 {
		return nil, &domain.ProviderAPIError{Provider: a.name, Err: fmt.Errorf("empty choices in response")}
	}

	return &provider.Generation{
		Content: chatResp.Choices[0].Message.Content,
		Tokens:  chatResp.Usage.TotalTokens,
	}, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
