// Package vertexclaude adapts Claude models served through Google
// Vertex AI. Vertex endpoints are region-pinned, which is what makes
// this adapter usable under EU-only routing.
package vertexclaude

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
	vertexAnthropicVersion = "vertex-2023-10-16"
	defaultModel           = "claude-3-5-sonnet-v2@20241022"
	maxTokens              = 4096
)

type Adapter struct {
	projectID   string
	region      string
	accessToken string
	client      *http.Client
}

// New builds a Vertex-hosted Claude adapter. region should be an EU
// location such as europe-west1 when used behind EU-only routing.
func New(projectID, region, accessToken string) *Adapter {
	return &Adapter{
		projectID:   projectID,
		region:      region,
		accessToken: accessToken,
		client:      httputil.DefaultClient(),
	}
}

func (a *Adapter) Name() string { return "vertex_claude" }

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
	if a.projectID == "" || a.accessToken == "" {
		return nil, &domain.ProviderConfigError{Provider: a.Name(), Reason: "missing project or access token"}
	}
	if model == "" {
		model = defaultModel
	}
	if !strings.HasPrefix(model, "claude-") {
		return nil, &domain.ProviderConfigError{Provider: a.Name(), Reason: fmt.Sprintf("unsupported model %q", model)}
	}

	body, err := json.Marshal(rawPredictRequest{
		AnthropicVersion: vertexAnthropicVersion,
		MaxTokens:        maxTokens,
		Messages:         []message{{Role: "user", Content: blocks}},
	})
	if err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	url := fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/anthropic/models/%s:rawPredict",
		a.region, a.projectID, a.region, model,
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.Name(), Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.accessToken)

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

	var predictResp rawPredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&predictResp); err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}

	var content strings.Builder
	for _, block := range predictResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &provider.Generation{
		Content: content.String(),
		Tokens:  predictResp.Usage.InputTokens + predictResp.Usage.OutputTokens,
	}, nil
}

type rawPredictRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Messages         []message `json:"messages"`
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

type rawPredictResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
