package api

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4000
)

type ChatMessage struct {
	Role     string                 `json:"role" binding:"required,oneof=user assistant system"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type ChatRequest struct {
	// conversation order is preserved all the way upstream
	Messages []ChatMessage `json:"messages" binding:"required,min=1,dive"`

	Model    string   `json:"model" binding:"required"`
	Provider Provider `json:"provider" binding:"required"`

	Temperature float64 `json:"temperature" binding:"gte=0,lte=2"`
	MaxTokens   int     `json:"max_tokens" binding:"min=1,max=32000"`
	Stream      bool    `json:"stream"`

	// correlation identifiers, reported with usage
	UserID *int64 `json:"user_id,omitempty"`
	ChatID *int64 `json:"chat_id,omitempty"`
}

// NewChatRequest returns a request pre-filled with defaults. Decoding JSON
// into it only overwrites the fields the client sent.
func NewChatRequest() ChatRequest {
	return ChatRequest{
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// System returns the content of all system messages in order.
func (r *ChatRequest) System() []string {
	var out []string
	for _, m := range r.Messages {
		if m.Role == "system" {
			out = append(out, m.Content)
		}
	}
	return out
}

// TokenCountRequest and CostEstimateRequest bind from a JSON body or from
// query parameters.
type TokenCountRequest struct {
	Text  string `json:"text" form:"text" binding:"required"`
	Model string `json:"model" form:"model"`
}

type CostEstimateRequest struct {
	Model        string `json:"model" form:"model" binding:"required"`
	InputTokens  int    `json:"input_tokens" form:"input_tokens" binding:"gte=0"`
	OutputTokens int    `json:"output_tokens" form:"output_tokens" binding:"gte=0"`
}
