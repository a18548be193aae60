package registry

import (
	"github.com/nulzo/llm-proxy/pkg/api"
	"github.com/shopspring/decimal"
)

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Defaults is the built-in model table.
func Defaults() []api.ModelDescriptor {
	return []api.ModelDescriptor{
		// OpenAI
		{
			Name:               "gpt-4",
			Provider:           api.OpenAI,
			InputCostPerToken:  price("0.00003"),
			OutputCostPerToken: price("0.00006"),
			MaxOutputTokens:    8192,
			ContextWindow:      8192,
			SupportsStreaming:  true,
			SupportsFunctions:  true,
		},
		{
			Name:               "gpt-4-turbo",
			Provider:           api.OpenAI,
			InputCostPerToken:  price("0.00001"),
			OutputCostPerToken: price("0.00003"),
			MaxOutputTokens:    4096,
			ContextWindow:      128000,
			SupportsStreaming:  true,
			SupportsFunctions:  true,
		},
		{
			Name:               "gpt-3.5-turbo",
			Provider:           api.OpenAI,
			InputCostPerToken:  price("0.0000015"),
			OutputCostPerToken: price("0.000002"),
			MaxOutputTokens:    4096,
			ContextWindow:      16384,
			SupportsStreaming:  true,
			SupportsFunctions:  true,
		},
		// Anthropic
		{
			Name:               "claude-3-sonnet-20240229",
			Provider:           api.Anthropic,
			InputCostPerToken:  price("0.000003"),
			OutputCostPerToken: price("0.000015"),
			MaxOutputTokens:    4096,
			ContextWindow:      200000,
			SupportsStreaming:  true,
		},
		{
			Name:               "claude-3-haiku-20240307",
			Provider:           api.Anthropic,
			InputCostPerToken:  price("0.00000025"),
			OutputCostPerToken: price("0.00000125"),
			MaxOutputTokens:    4096,
			ContextWindow:      200000,
			SupportsStreaming:  true,
		},
		// Google
		{
			Name:               "gemini-pro",
			Provider:           api.Google,
			InputCostPerToken:  price("0.0000005"),
			OutputCostPerToken: price("0.0000015"),
			MaxOutputTokens:    8192,
			ContextWindow:      32768,
			SupportsStreaming:  true,
		},
		// DeepSeek
		{
			Name:               "deepseek-chat",
			Provider:           api.DeepSeek,
			InputCostPerToken:  price("0.00000014"),
			OutputCostPerToken: price("0.00000028"),
			MaxOutputTokens:    4096,
			ContextWindow:      32768,
			SupportsStreaming:  true,
		},
		// OpenRouter
		{
			Name:               "openrouter/auto",
			Provider:           api.OpenRouter,
			InputCostPerToken:  price("0.000002"),
			OutputCostPerToken: price("0.000002"),
			MaxOutputTokens:    4096,
			ContextWindow:      8192,
			SupportsStreaming:  true,
		},
		// RunPod
		{
			Name:               "runpod/llama-2-70b",
			Provider:           api.RunPod,
			InputCostPerToken:  price("0.0000008"),
			OutputCostPerToken: price("0.0000008"),
			MaxOutputTokens:    4096,
			ContextWindow:      4096,
			SupportsStreaming:  true,
		},
	}
}
