package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ragstack/localrag/rag/types"
	"github.com/sashabaranov/go-openai"
)

// Generator produces grounded answers from retrieved context through an
// OpenAI-compatible chat API.
type Generator struct {
	client *openai.Client
	model  string
}

func NewGenerator(client *openai.Client, model string) *Generator {
	return &Generator{client: client, model: model}
}

const rewriteSystemPrompt = `You are a query optimization assistant. Transform the user's question into a single, concise search query: resolve ambiguities, expand key concepts with synonyms, and keep the original intent. Return ONLY the reformulated query, no explanations.`

// RewriteQuery reformulates the user query for retrieval, using the chat
// history for context. Single-turn conversations skip the extra model
// call.
func (g *Generator) RewriteQuery(ctx context.Context, history []openai.ChatCompletionMessage, query string) (string, error) {
	if len(history) == 0 {
		return query, nil
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleSystem,
			Content: fmt.Sprintf("Today's date: %s\n%s\n\nChat history:\n%s",
				time.Now().Format("2006-01-02"), rewriteSystemPrompt, formatHistory(history)),
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: "Reformulate this query for better retrieval results: " + query,
		},
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("query rewrite failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return query, nil
	}

	rewritten := strings.TrimSpace(resp.Choices[0].Message.Content)
	if rewritten == "" {
		return query, nil
	}
	return rewritten, nil
}

const answerSystemPrompt = `You are a helpful assistant answering questions from a personal knowledge base. Use only the provided source material, cite the source of every claim, and say so when the sources do not contain the answer.`

const noDocumentsSystemPrompt = `You are a helpful assistant. No relevant documents were found in the knowledge base, so answer from general knowledge and say that the knowledge base did not contain relevant material.`

// Answer generates a grounded answer from the retrieved chunks.
func (g *Generator) Answer(ctx context.Context, query string, results []types.SearchResult) (string, error) {
	systemPrompt := answerSystemPrompt
	if len(results) == 0 {
		systemPrompt = noDocumentsSystemPrompt
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: formatDocumentsSection(results) + "\n\nUser's question:\n" + query},
		},
	})
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from chat API")
	}

	return resp.Choices[0].Message.Content, nil
}

func formatHistory(history []openai.ChatCompletionMessage) string {
	var b strings.Builder
	b.WriteString("<chat_history>\n")
	for _, m := range history {
		fmt.Fprintf(&b, "<%s>%s</%s>\n", m.Role, m.Content, m.Role)
	}
	b.WriteString("</chat_history>")
	return b.String()
}

func formatDocumentsSection(results []types.SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Source material:\n<documents>\n")
	for _, r := range results {
		source := r.Metadata["source"]
		if source == "" {
			source = "unknown_source"
		}
		fmt.Fprintf(&b, "<document>\n<source>%s</source>\n<content>%s</content>\n</document>\n", source, r.Content)
	}
	b.WriteString("</documents>")
	return b.String()
}
