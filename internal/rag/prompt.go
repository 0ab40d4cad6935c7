package rag

import "fmt"

const knowledgeInstructions = `Use the knowledge base context below to answer the user's question. Base your answer on the context whenever it is relevant. If the context does not contain the information needed, say that the knowledge base does not cover it instead of guessing.`

// BuildSystemPrompt appends the retrieved knowledge base context to an
// agent's configured system prompt. With no context the base prompt is
// returned untouched.
func BuildSystemPrompt(basePrompt, contextText string) string {
	if contextText == "" {
		return basePrompt
	}
	return fmt.Sprintf("%s\n\n%s\n\nKnowledge base context:\n%s", basePrompt, knowledgeInstructions, contextText)
}
