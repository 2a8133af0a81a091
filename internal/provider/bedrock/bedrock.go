package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/provider"
)

const (
	defaultModelID = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	maxTokens      = 4096
)

// Adapter invokes Claude models through AWS Bedrock. Deployed in an EU
// region (eu-central-1) it serves as a compliant upstream.
type Adapter struct {
	client *bedrockruntime.Client
	region string
}

func New(ctx context.Context, region string) (*Adapter, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Adapter{
		client: bedrockruntime.NewFromConfig(cfg),
		region: region,
	}, nil
}

func NewWithConfig(cfg aws.Config) *Adapter {
	return &Adapter{
		client: bedrockruntime.NewFromConfig(cfg),
		region: cfg.Region,
	}
}

func (a *Adapter) Name() string { return "bedrock" }

func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{Text: true}
}

func (a *Adapter) Generate(ctx context.Context, prompt, model string) (*provider.Generation, error) {
	if a.client == nil {
		return nil, &domain.ProviderConfigError{Provider: a.Name(), Reason: "client not configured"}
	}
	if model == "" {
		model = defaultModelID
	}

	body, err := json.Marshal(invokeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Messages:         []invokeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	output, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.Name(), Err: fmt.Errorf("invoke model: %w", err)}
	}

	var invokeResp invokeResponse
	if err := json.Unmarshal(output.Body, &invokeResp); err != nil {
		return nil, &domain.ProviderAPIError{Provider: a.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}

	var content string
	for _, block := range invokeResp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &provider.Generation{
		Content: content,
		Tokens:  invokeResp.Usage.InputTokens + invokeResp.Usage.OutputTokens,
	}, nil
}

type invokeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Messages         []invokeMessage `json:"messages"`
}

type invokeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type invokeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
