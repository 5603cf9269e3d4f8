package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type openAIChatMsg struct {
	Role       string           `json:"role"`
	Content    interface{}      `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIChatMsg `json:"messages"`
	Tools       []interface{}   `json:"tools,omitempty"`
	Temperature float64         `json:"temperature"`
	Stream      bool            `json:"stream"`
}

type openAIChatResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content   string           `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func openAIPost(ctx context.Context, baseURL, apiKey, path string, payload interface{}, out interface{}) error {
	endpoint := strings.TrimRight(baseURL, "/") + path
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("openai request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type openAIProvider struct {
	apiKey  string
	baseURL string
}

func (p *openAIProvider) Name() string {
	return "openai"
}

func (p *openAIProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	if p.apiKey == "" {
		return "", ErrUnavailable
	}
	reqBody := openAIChatRequest{
		Model:    model,
		Messages: []openAIChatMsg{{Role: "user", Content: prompt}},
	}
	var out openAIChatResponse
	if err := openAIPost(ctx, p.baseURL, p.apiKey, "/chat/completions", reqBody, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai response has no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

type openAIEmbedProvider struct {
	apiKey  string
	baseURL string
}

func (p *openAIEmbedProvider) Name() string {
	return "openai"
}

func (p *openAIEmbedProvider) Embed(ctx context.Context, model string, text string, purpose string) ([]float32, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	_ = purpose // openai embeddings are symmetric
	var out openAIEmbedResponse
	if err := openAIPost(ctx, p.baseURL, p.apiKey, "/embeddings", openAIEmbedRequest{Model: model, Input: text}, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("openai response has no embeddings")
	}
	return out.Data[0].Embedding, nil
}

type openAIChatProvider struct {
	apiKey  string
	baseURL string
}

func (p *openAIChatProvider) Name() string {
	return "openai"
}

func (p *openAIChatProvider) Chat(ctx context.Context, model string, history []ChatMessage, tools []ToolSpec) (*ChatTurn, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	reqBody := openAIChatRequest{
		Model:    model,
		Messages: openAIMessages(history),
		Tools:    openAITools(tools),
	}
	var out openAIChatResponse
	if err := openAIPost(ctx, p.baseURL, p.apiKey, "/chat/completions", reqBody, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}
	choice := out.Choices[0]
	if choice.FinishReason == "tool_calls" || len(choice.Message.ToolCalls) > 0 {
		msg := ChatMessage{Role: RoleAssistant, Text: choice.Message.Content}
		for _, call := range choice.Message.ToolCalls {
			input := map[string]interface{}{}
			if call.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
					return nil, fmt.Errorf("decode tool arguments: %w", err)
				}
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: call.ID, Name: call.Function.Name, Input: input})
		}
		return &ChatTurn{Message: msg, StopReason: StopToolUse}, nil
	}
	return &ChatTurn{
		Message:    ChatMessage{Role: RoleAssistant, Text: strings.TrimSpace(choice.Message.Content)},
		StopReason: StopEndTurn,
	}, nil
}

func openAIMessages(history []ChatMessage) []openAIChatMsg {
	msgs := make([]openAIChatMsg, 0, len(history))
	for _, msg := range history {
		if len(msg.ToolResults) > 0 {
			for _, result := range msg.ToolResults {
				content, _ := json.Marshal(result.Content)
				msgs = append(msgs, openAIChatMsg{
					Role:       "tool",
					ToolCallID: result.ID,
					Content:    string(content),
				})
			}
			continue
		}
		entry := openAIChatMsg{Role: msg.Role}
		if len(msg.Images) > 0 {
			blocks := []interface{}{}
			for _, img := range msg.Images {
				blocks = append(blocks, map[string]interface{}{
					"type": "image_url",
					"image_url": map[string]string{
						"url": "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
					},
				})
			}
			if msg.Text != "" {
				blocks = append(blocks, map[string]interface{}{"type": "text", "text": msg.Text})
			}
			entry.Content = blocks
		} else if msg.Text != "" {
			entry.Content = msg.Text
		}
		for _, call := range msg.ToolCalls {
			args, _ := json.Marshal(call.Input)
			tc := openAIToolCall{ID: call.ID, Type: "function"}
			tc.Function.Name = call.Name
			tc.Function.Arguments = string(args)
			entry.ToolCalls = append(entry.ToolCalls, tc)
		}
		msgs = append(msgs, entry)
	}
	return msgs
}

func openAITools(tools []ToolSpec) []interface{} {
	if len(tools) == 0 {
		return nil
	}
	out := make([]interface{}, 0, len(tools))
	for _, tool := range tools {
		props := map[string]interface{}{}
		required := []string{}
		for _, param := range tool.Params {
			props[param.Name] = map[string]string{
				"type":        param.Type,
				"description": param.Description,
			}
			if param.Required {
				required = append(required, param.Name)
			}
		}
		out = append(out, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters": map[string]interface{}{
					"type":       "object",
					"properties": props,
					"required":   required,
				},
			},
		})
	}
	return out
}

func createOpenAIFactory(args interface{}) (IGenProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &openAIProvider{apiKey: strings.TrimSpace(cfg.APIKey), baseURL: openAIBaseURL(cfg)}, nil
}

func createOpenAIEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &openAIEmbedProvider{apiKey: strings.TrimSpace(cfg.APIKey), baseURL: openAIBaseURL(cfg)}, nil
}

func createOpenAIChatFactory(args interface{}) (IChatProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &openAIChatProvider{apiKey: strings.TrimSpace(cfg.APIKey), baseURL: openAIBaseURL(cfg)}, nil
}

func openAIBaseURL(cfg *openAIConfig) string {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return baseURL
}

func init() {
	Register("openai", createOpenAIFactory)
	RegisterEmbed("openai", createOpenAIEmbedFactory)
	RegisterChat("openai", createOpenAIChatFactory)
}
