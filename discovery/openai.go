package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder implements Embedder against the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder creates an embedder. An empty model selects a small,
// inexpensive default.
func NewOpenAIEmbedder(apiKey string, model openai.EmbeddingModel) *OpenAIEmbedder {
	if model == "" {
		model = openai.SmallEmbedding3
	}
	return &OpenAIEmbedder{client: openai.NewClient(apiKey), model: model}
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embeddings: %w", err)
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// OpenAIRanker implements Ranker against the OpenAI chat completions API.
type OpenAIRanker struct {
	client *openai.Client
	model  string
}

// NewOpenAIRanker creates a ranker. An empty model selects a small default.
func NewOpenAIRanker(apiKey, model string) *OpenAIRanker {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIRanker{client: openai.NewClient(apiKey), model: model}
}

const rankerSystemPrompt = `You rank software tools by relevance to a user query.
Reply with a JSON array of tool names ordered from most to least relevant.
Only include names from the provided list. Reply with the JSON array and nothing else.`

// Rank implements Ranker.
func (r *OpenAIRanker) Rank(ctx context.Context, query string, candidates []Candidate, limit int) ([]string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nTools (at most %d should be returned):\n", query, limit)
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: rankerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: b.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ranking request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("ranking response had no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var names []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &names); err != nil {
		return nil, fmt.Errorf("parsing ranking response: %w", err)
	}
	if len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

var _ Ranker = (*OpenAIRanker)(nil)
