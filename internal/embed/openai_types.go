package embed

// openaiEmbedRequest is the request body for POST /v1/embeddings.
type openaiEmbedRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

// openaiEmbedResponse is the success body from /v1/embeddings.
type openaiEmbedResponse struct {
	Data  []openaiEmbedding `json:"data"`
	Model string            `json:"model"`
	Usage openaiUsage       `json:"usage"`
}

type openaiEmbedding struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type openaiUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// openaiErrorResponse is the error envelope the API returns on 4xx/5xx.
type openaiErrorResponse struct {
	Error openaiError `json:"error"`
}

type openaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// openaiModelsResponse is the (truncated) body from GET /v1/models,
// used only as a reachability and auth probe.
type openaiModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}
