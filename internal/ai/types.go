package ai

// ChatMessage is one turn in a chat-completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the request body for POST /chat/completions.
type ChatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
	Messages    []ChatMessage `json:"messages"`
}

// ChatResponse is the subset of the completion response that is read.
type ChatResponse struct {
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Message ChatMessage `json:"message"`
}

// Model is an entry in GET /models.
type Model struct {
	ID string `json:"id"`
}

// ModelList is the response of GET /models.
type ModelList struct {
	Data []Model `json:"data"`
}
