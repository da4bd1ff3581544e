package llm

// Message represents a chat message in a conversation. When Parts is set it
// takes precedence over Content and is sent as a multimodal content array.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	Parts   []Part `json:"parts,omitempty"`
}

// PartType identifies the kind of a content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image_url"
	PartFile  PartType = "file"
)

// Part is one element of a multimodal message. Image and file parts carry
// their payload as a data URI.
type Part struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	URL      string   `json:"url,omitempty"`
	FileName string   `json:"file_name,omitempty"`
}

// TextPart is a convenience constructor for a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// Request is a single completion request.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// Response represents a complete response from an LLM provider.
type Response struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// Usage tracks token consumption for a request/response pair.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
