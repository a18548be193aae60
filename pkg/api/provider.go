package api

import "strings"

// Provider identifies an upstream chat-completion API.
type Provider string

const (
	OpenAI     Provider = "openai"
	Anthropic  Provider = "anthropic"
	Google     Provider = "google"
	DeepSeek   Provider = "deepseek"
	OpenRouter Provider = "openrouter"
	RunPod     Provider = "runpod"
)

// Providers returns every supported provider in a stable order.
func Providers() []Provider {
	return []Provider{OpenAI, Anthropic, Google, DeepSeek, OpenRouter, RunPod}
}

func (p Provider) Valid() bool {
	switch p {
	case OpenAI, Anthropic, Google, DeepSeek, OpenRouter, RunPod:
		return true
	}
	return false
}

func (p Provider) String() string {
	return string(p)
}

// CredentialHeader is the request header that may carry a per-request key,
// e.g. X-OPENAI-API-KEY.
func (p Provider) CredentialHeader() string {
	return "X-" + strings.ToUpper(string(p)) + "-API-KEY"
}

// CredentialEnv is the environment variable holding the process-wide key.
func (p Provider) CredentialEnv() string {
	return strings.ToUpper(string(p)) + "_API_KEY"
}
