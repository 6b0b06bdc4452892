package llmutils

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bizbot-il/bizbot/model"
)

// summarySystemPrompt instructs the merge. Business facts are banned
// from summaries so a stale summary can never contradict the KB.
const summarySystemPrompt = `You are a conversation summarizer for a small-business service bot.
Merge the prior summary (if any) with the new messages into ONE updated summary.

Requirements:
- Focus on the customer's preferences, requests, open issues and appointments.
- NEVER include business facts: no prices, no opening hours, no address. Those live in the knowledge base, not in summaries.
- Keep it short: 3-5 sentences.
- Write in the language the customer used.
- Return only the summary text, nothing else.`

const summaryMaxTokens = 300

// MergeSummary asks the LLM to fold newMessages into priorSummary and
// returns the replacement summary text.
func MergeSummary(ctx context.Context, client LLMClient, llmModel, priorSummary string, newMessages []model.Message) (string, error) {
	if client == nil {
		return "", fmt.Errorf("LLM client is nil")
	}

	var b strings.Builder
	if priorSummary != "" {
		b.WriteString("Prior summary:\n")
		b.WriteString(priorSummary)
		b.WriteString("\n\n")
	}
	b.WriteString("New messages:\n")
	b.WriteString(FormatMessagesForSummary(newMessages))

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: llmModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: b.String()},
		},
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("LLM request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// FormatMessagesForSummary renders stored messages as role-labeled
// lines for the summarization prompt. Long messages are truncated.
func FormatMessagesForSummary(msgs []model.Message) string {
	var result strings.Builder
	for _, msg := range msgs {
		content := msg.Text
		if content == "" {
			continue
		}
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		fmt.Fprintf(&result, "%s: %s\n", msg.Role, content)
	}
	return result.String()
}
