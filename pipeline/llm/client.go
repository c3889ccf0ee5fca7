// Package llm wraps the OpenAI SDK with the failure classification the
// orchestrator's retry policy depends on. Stages never see model quirks:
// parameter translation for reasoning-only models happens here.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
)

// exhaustionRatio: empty text with completion usage at or above this share
// of the budget is silent exhaustion, not a success.
const exhaustionRatio = 0.95

// Models that spend budget on internal reasoning and reject a temperature
// override. Matched by prefix.
var reasoningModelPrefixes = []string{"o1", "o3", "o4", "gpt-5"}

type Client struct {
	api         *openaisdk.Client
	meter       *UsageMeter
	temperature float32
}

var _ contractx.ModelClient = (*Client)(nil)

func NewClient(api *openaisdk.Client, meter *UsageMeter, temperature float32) (*Client, error) {
	if api == nil {
		return nil, errors.New("openai sdk client is required")
	}
	return &Client{
		api:         api,
		meter:       meter,
		temperature: temperature,
	}, nil
}

// Invoke sends one request and classifies the outcome. The effective token
// budget honours any scale set on the context by the orchestrator's
// silent-exhaustion retry.
func (c *Client) Invoke(ctx context.Context, req contractx.ModelRequest) (contractx.ModelResponse, error) {
	if err := validateRequest(req); err != nil {
		return contractx.ModelResponse{}, err
	}

	budget := scaledBudget(ctx, req.MaxTokens)
	params := c.buildParams(req, budget)

	completion, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return contractx.ModelResponse{}, classifyAPIError(err)
	}

	resp := contractx.ModelResponse{Usage: usageOf(completion)}
	c.meter.Add(resp.Usage)

	if len(completion.Choices) > 0 {
		resp.Text = strings.TrimSpace(completion.Choices[0].Message.Content)
	}

	log.Debug().
		Str("stage", req.Stage).
		Str("model", req.Model).
		Int64("budget", budget).
		Int64("completion_tokens", resp.Usage.Completion).
		Msg("model call complete")

	if resp.Text == "" {
		if nearBudget(resp.Usage, budget) {
			return resp, fmt.Errorf("%w: stage=%s budget=%d used=%d",
				contractx.ErrSilentExhaustion, req.Stage, budget, resp.Usage.Completion)
		}
		return resp, fmt.Errorf("%w: stage=%s empty response", contractx.ErrMalformed, req.Stage)
	}

	return resp, nil
}

func validateRequest(req contractx.ModelRequest) error {
	if strings.TrimSpace(req.Model) == "" {
		return fmt.Errorf("%w: model identifier is required", contractx.ErrRejected)
	}
	if req.MaxTokens <= 0 {
		return fmt.Errorf("%w: token budget must be > 0", contractx.ErrRejected)
	}
	return nil
}

func (c *Client) buildParams(req contractx.ModelRequest, budget int64) openaisdk.ChatCompletionNewParams {
	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openaisdk.SystemMessage(req.System))
	}
	messages = append(messages, openaisdk.UserMessage(req.Prompt))

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(req.Model),
		Messages: messages,
	}

	if isReasoningModel(req.Model) {
		params.MaxCompletionTokens = openaisdk.Int(budget)
	} else {
		params.MaxTokens = openaisdk.Int(budget)
		params.Temperature = openaisdk.Float(float64(c.temperature))
	}
	return params
}

func isReasoningModel(model string) bool {
	model = strings.ToLower(strings.TrimSpace(model))
	for _, prefix := range reasoningModelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func classifyAPIError(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %v", contractx.ErrTransport, err)
		default:
			return fmt.Errorf("%w: %v", contractx.ErrRejected, err)
		}
	}
	// Network failures and timeouts land here.
	return fmt.Errorf("%w: %v", contractx.ErrTransport, err)
}

func usageOf(completion *openaisdk.ChatCompletion) contractx.TokenUsage {
	if completion == nil {
		return contractx.TokenUsage{}
	}
	return contractx.TokenUsage{
		Prompt:     completion.Usage.PromptTokens,
		Completion: completion.Usage.CompletionTokens,
		Reasoning:  completion.Usage.CompletionTokensDetails.ReasoningTokens,
		Total:      completion.Usage.TotalTokens,
	}
}

func nearBudget(u contractx.TokenUsage, budget int64) bool {
	if budget <= 0 {
		return false
	}
	return float64(u.Completion) >= exhaustionRatio*float64(budget)
}
