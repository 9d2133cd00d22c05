package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/leozhang/finsight/internal/observability"
)

// DashScopeBaseURL is the OpenAI-compatible endpoint of Alibaba Cloud
// DashScope, which serves the qwen model family.
const DashScopeBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// OpenAIProvider implements Provider over the OpenAI chat completion API.
// It also backs any OpenAI-compatible service selected via base URL.
type OpenAIProvider struct {
	name   string
	client openai.Client
}

// NewOpenAIProvider creates a provider against api.openai.com, or against
// baseURL when one is given.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		name:   "openai",
		client: openai.NewClient(opts...),
	}
}

// NewDashScopeProvider creates a provider against the DashScope
// compatible-mode endpoint. A non-empty baseURL overrides the default,
// which is what self-hosted compatible gateways use.
func NewDashScopeProvider(apiKey, baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = DashScopeBaseURL
	}
	return &OpenAIProvider{
		name: "dashscope",
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
		),
	}
}

// Provider returns the provider name.
func (p *OpenAIProvider) Provider() string {
	return p.name
}

// Call makes a chat completion call.
func (p *OpenAIProvider) Call(ctx context.Context, request Request) (*Response, error) {
	start := time.Now()
	resp, err := p.call(ctx, request)
	observability.RecordLLMCall(p.name, time.Since(start), err == nil)
	return resp, err
}

func (p *OpenAIProvider) call(ctx context.Context, request Request) (*Response, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	if request.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(request.SystemPrompt))
	}

	for _, msg := range request.Messages {
		switch msg.Role {
		case "system":
			continue // carried in SystemPrompt
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(request.Model),
		Messages: messages,
	}
	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}
	if request.Temperature > 0 {
		params.Temperature = openai.Float(request.Temperature)
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	return &Response{
		Content: response.Choices[0].Message.Content,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		},
	}, nil
}
