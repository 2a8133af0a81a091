package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/httputil"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/provider"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
	defaultModel     = "claude-3-5-sonnet-20241022"
	maxTokens        = 4096
)

// Adapter calls the Anthropic messages API.
type Adapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func New(apiKey string) *Adapter {
	return &Adapter{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  httputil.DefaultClient(),
	}
}

func NewWithBaseURL(apiKey, baseURL string) *Adapter {
	a := New(apiKey)
	a.baseURL = baseURL
	return a
}

func (a *Adapter) Name() string { return "anthropic" }

func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{Text: true, Vision: true}
}

func (a *Adapter) Generate(ctx context.Context, prompt, model string) (*provider.Generation, error) {
	return a.invoke(ctx, model, []contentBlock{{Type: "text", Text: prompt}})
}

func (a *Adapter) GenerateWithImage(ctx context.Context, prompt, imageRef, model string) (*provider.Generation, error) {
	blocks := []contentBlock{
		{Type: "image", Source: &imageSource{Type: "url", URL: imageRef}},
		{Type: "text", Text: prompt},
	}
	return a.invoke(ctx, model, blocks)
}

func (a *Adapter) invoke(ctx context.Context, model string, blocks []contentBlock) (*provider.Generation, error) {
	if a.apiKey == "" {
		return nil, &domain.ProviderConfigError{Provider: a.Name(), Reason: "missing API key"}
	}
	if model == "" {
		model = defaultModel
	}
	if !strings.HasPrefix(model, "claude-") {
		return nil, &domain.ProviderConfigError{Provider: a.Name(), Reason: fmt.Sprintf("unsupported model %q", model)}
	}

	body, err := json.Marshal(messagesRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: blocks}},
	})
	if err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.Name(), Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.Name(), Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &domain.ProviderAPIError{
			Provider: a.Name(),
			Err:      fmt.Errorf("status=%d body=%s", resp.StatusCode, string(bodyBytes)),
		}
	}

	var msgResp messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}

	var content strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &provider.Generation{
		Content: content.String(),
		Tokens:  msgResp.Usage.InputTokens + msgResp.Usage.OutputTokens,
	}, nil
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type messagesResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
