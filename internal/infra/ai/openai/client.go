package openai

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "strings"

    "github.com/sashabaranov/go-openai"

    domain "github.com/bryanwahyu/codeaudit/internal/domain/ai"
    "github.com/bryanwahyu/codeaudit/internal/infra/ai/prompt"
)

const maxTokens = 4096

type Client struct {
    *openai.Client
    Model string
}

func NewClient(apiKey, model string) *Client {
    return &Client{Client: openai.NewClient(apiKey), Model: model}
}

func (c *Client) Assess(ctx context.Context, sourceContent, projectLabel string) (string, error) {
    model := c.Model
    if model == "" {
        model = "o3-2025-04-16"
    }
    req := openai.ChatCompletionRequest{
        Model: model,
        ResponseFormat: &openai.ChatCompletionResponseFormat{
            Type: openai.ChatCompletionResponseFormatTypeJSONObject,
        },
        Messages: []openai.ChatCompletionMessage{
            {Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
            {Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(sourceContent, projectLabel)},
        },
    }
    // For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
    if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
        req.MaxCompletionTokens = maxTokens
    } else {
        req.MaxTokens = maxTokens
    }

    resp, err := c.CreateChatCompletion(ctx, req)
    if err != nil {
        return "", wrapCompletionErr(err)
    }
    if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
        return "", domain.ErrEmptyResponse
    }

    return resp.Choices[0].Message.Content, nil
}

func wrapCompletionErr(err error) error {
    var apiErr *openai.APIError
    if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
        return fmt.Errorf("%w: %v", domain.ErrQuotaExceeded, err)
    }
    return fmt.Errorf("failed to create chat completion: %w", err)
}
