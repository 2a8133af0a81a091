package ollama

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

const defaultModel = "llama3.1"

// Adapter calls a self-hosted Ollama instance. No credentials required;
// the base URL is the only configuration.
type Adapter struct {
	baseURL      string
	defaultModel string
	client       *http.Client
}

func New(baseURL string) *Adapter {
	return &Adapter{
		baseURL:      baseURL,
		defaultModel: defaultModel,
		client:       httputil.DefaultClient(),
	}
}

func (a *Adapter) Name() string { return "ollama" }

func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{Text: true}
}

func (a *Adapter) Generate(ctx context.Context, prompt, model string) (*provider.Generation, error) {
	if a.baseURL == "" {
		return nil, &domain.ProviderConfigError{Provider: a.Name(), Reason: "missing base URL"}
	}
	if model == "" {
		model = a.defaultModel
	}

	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
	})
	if err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.Name(), Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}

	return &provider.Generation{
		Content: chatResp.Message.Content,
		Tokens:  chatResp.PromptEvalCount + chatResp.EvalCount,
	}, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}
