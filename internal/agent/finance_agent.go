package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/finbot/finbot/internal/tools"
	"github.com/rs/zerolog/log"
)

const (
	maxIterations  = 8
	forceAnswerAt  = 6
	forceAnswerMsg = "You have enough information. Reply to the user now without calling any more tools."
)

// ToolCall represents a tool invocation request from the LLM
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// Runner runs one conversational turn with tools. *FinanceAgent satisfies it.
type Runner interface {
	Run(ctx context.Context, systemPrompt, userPrompt string, agentTools []tools.Tool) (string, []string, error)
}

// FinanceAgent wraps the Anthropic SDK for a multi-turn tool-calling loop
type FinanceAgent struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewFinanceAgent creates an agent backed by Anthropic Claude or a compatible provider.
func NewFinanceAgent(apiKey, model, baseURL string) *FinanceAgent {
	if model == "" {
		model = "claude-sonnet-4-6"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &FinanceAgent{
		client:    client,
		model:     model,
		maxTokens: 2048,
	}
}

// Model returns the configured model name.
func (a *FinanceAgent) Model() string { return a.model }

func toolParams(agentTools []tools.Tool) []anthropic.ToolUnionUnionParam {
	params := make([]anthropic.ToolUnionUnionParam, len(agentTools))
	for i, t := range agentTools {
		schema := map[string]interface{}{
			"type":       "object",
			"properties": t.InputSchema["properties"],
		}
		if required, ok := t.InputSchema["required"]; ok {
			schema["required"] = required
		}
		params[i] = anthropic.ToolParam{
			Name:        anthropic.String(t.Name),
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.F[interface{}](schema),
		}
	}
	return params
}

func (a *FinanceAgent) params(systemPrompt string, messages []anthropic.MessageParam) anthropic.MessageNewParams {
	p := anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(a.model)),
		MaxTokens: anthropic.F(int64(a.maxTokens)),
		Messages:  anthropic.F(messages),
	}
	if systemPrompt != "" {
		p.System = anthropic.F([]anthropic.TextBlockParam{anthropic.NewTextBlock(systemPrompt)})
	}
	return p
}

// Run executes the agent loop until the model stops calling tools.
// Returns (finalText, toolsUsed, error).
func (a *FinanceAgent) Run(ctx context.Context, systemPrompt, userPrompt string, agentTools []tools.Tool) (string, []string, error) {
	toolDefs := toolParams(agentTools)
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
	}

	var toolsUsed []string

	for iter := 0; iter < maxIterations; iter++ {
		params := a.params(systemPrompt, messages)
		params.Tools = anthropic.F(toolDefs)

		resp, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return "", toolsUsed, fmt.Errorf("LLM call failed: %w", err)
		}

		var textContent string
		var pendingToolCalls []ToolCall

		for _, block := range resp.Content {
			switch b := block.AsUnion().(type) {
			case anthropic.TextBlock:
				textContent += b.Text
			case anthropic.ToolUseBlock:
				var input map[string]interface{}
				if err := json.Unmarshal(b.Input, &input); err != nil {
					log.Warn().Err(err).Str("tool", b.Name).Msg("failed to parse tool input")
					input = map[string]interface{}{}
				}
				pendingToolCalls = append(pendingToolCalls, ToolCall{
					ID:    b.ID,
					Name:  b.Name,
					Input: input,
				})
			}
		}

		log.Debug().
			Int("iter", iter).
			Str("stop_reason", string(resp.StopReason)).
			Int("tool_calls", len(pendingToolCalls)).
			Msg("agent iteration")

		if resp.StopReason != "tool_use" || len(pendingToolCalls) == 0 {
			return textContent, toolsUsed, nil
		}

		messages = append(messages, resp.ToParam())

		if iter >= forceAnswerAt {
			// Answer the outstanding calls so the transcript stays valid, then ask for text.
			var blocks []anthropic.ContentBlockParamUnion
			for _, tc := range pendingToolCalls {
				blocks = append(blocks, anthropic.NewToolResultBlock(tc.ID, "skipped", true))
			}
			blocks = append(blocks, anthropic.NewTextBlock(forceAnswerMsg))
			messages = append(messages, anthropic.NewUserMessage(blocks...))

			finalResp, err := a.client.Messages.New(ctx, a.params(systemPrompt, messages))
			if err != nil {
				return textContent, toolsUsed, fmt.Errorf("final answer call failed: %w", err)
			}
			var final string
			for _, block := range finalResp.Content {
				if b, ok := block.AsUnion().(anthropic.TextBlock); ok {
					final += b.Text
				}
			}
			return final, toolsUsed, nil
		}

		var toolResults []anthropic.ContentBlockParamUnion
		for _, tc := range pendingToolCalls {
			toolsUsed = append(toolsUsed, tc.Name)
			result, execErr := executeTool(ctx, tc, agentTools)
			if execErr != nil {
				log.Warn().Err(execErr).Str("tool", tc.Name).Msg("tool execution error")
				result = fmt.Sprintf("error: %v", execErr)
			}
			toolResults = append(toolResults, anthropic.NewToolResultBlock(tc.ID, result, execErr != nil))
		}
		messages = append(messages, anthropic.NewUserMessage(toolResults...))
	}

	return "", toolsUsed, fmt.Errorf("agent loop exceeded max iterations (%d)", maxIterations)
}

func executeTool(ctx context.Context, tc ToolCall, agentTools []tools.Tool) (string, error) {
	for _, t := range agentTools {
		if t.Name == tc.Name {
			return t.Execute(ctx, tc.Input)
		}
	}
	return "", fmt.Errorf("unknown tool: %s", tc.Name)
}
