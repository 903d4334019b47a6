package claude

// Message is a single turn in the Messages API conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the payload for a Messages API call. The system prompt rides
// in its own field rather than as a message.
type Request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

// contentBlock is one element of the response content array.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// response is the Messages API completion envelope.
type response struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Content    []contentBlock `json:"content"`
	Usage      Usage          `json:"usage"`
}

// Usage reports token accounting for a completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Completion is the client's result for a successful generation.
type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// apiError is the error envelope returned on non-2xx statuses.
type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
