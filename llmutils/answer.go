package llmutils

import (
	"context"
	"regexp"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bizbot-il/bizbot/config"
	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/model"
)

// citationPattern is the Layer C quality gate: every grounded answer
// must end with a source citation in Hebrew or English.
var citationPattern = regexp.MustCompile(`(?i)(source|מקור):\s*.+`)

// citationLinePattern removes citation lines from the customer-facing
// text. The raw answer, including the citation, is what gets stored.
var citationLinePattern = regexp.MustCompile(`(?i)\n*(source|מקור):\s*.+`)

// Follow-up extraction: the bracketed form rule 11 asks for, plus a
// tolerant bare-line variant models sometimes emit instead.
var (
	followUpBracketPattern = regexp.MustCompile(`(?i)\[follow_up:\s*([^\]]+)\]`)
	followUpLinePattern    = regexp.MustCompile(`(?im)^follow[_\s-]?up:\s*(.+)$`)
)

const llmTemperature = 0.3

// Answer is the pipeline result. Text is what the customer sees; Raw
// is what gets persisted (citation included). Fallback answers carry
// the canned text and no follow-ups.
type Answer struct {
	Text       string
	Raw        string
	Sources    []string
	ChunksUsed int
	FollowUps  []string
	Fallback   bool
}

// AnswerInput is everything the pipeline needs for one answer. The
// caller resolves retrieval, hours, summary and history; the pipeline
// only assembles the prompt and post-processes the model output.
type AnswerInput struct {
	Query        string
	RAGContext   string
	HoursContext string

	// Summary is the stored conversation summary, empty when none
	Summary string

	// History is the recent window in chronological order
	History []model.Message

	Settings model.BotSettings

	// Sources and ChunksUsed describe the retrieval that produced
	// RAGContext, echoed into the Answer on success.
	Sources    []string
	ChunksUsed int
}

// Pipeline turns a retrieval result plus conversation state into a
// quality-checked answer.
type Pipeline struct {
	client       LLMClient
	model        string
	maxTokens    int
	businessName string
}

// NewPipeline wires the pipeline to a chat-completion client.
func NewPipeline(client LLMClient, cfg config.LLMConfig, businessName string) *Pipeline {
	return &Pipeline{
		client:       client,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		businessName: businessName,
	}
}

// Generate runs the full prompt composition, the provider call, and
// the post-processing. Provider errors degrade to the fallback answer;
// the returned error is reserved for context cancellation.
func (p *Pipeline) Generate(ctx context.Context, in AnswerInput) Answer {
	messages := p.buildMessages(in)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: llmTemperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil || len(resp.Choices) == 0 {
		if err != nil {
			log.Log.Errorf("[LLM] provider call failed: %v", err)
		}
		return Answer{Text: Fallback, Raw: Fallback, Fallback: true}
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	text, followUps := ExtractFollowUps(raw)

	// Layer C quality gate: an answer without a citation is treated as
	// ungrounded and replaced entirely.
	if !citationPattern.MatchString(text) {
		log.Log.Warnf("[LLM] quality check failed, no source citation. Preview: %.80s", text)
		return Answer{Text: Fallback, Raw: raw, Fallback: true}
	}

	return Answer{
		Text:       StripCitation(text),
		Raw:        raw,
		Sources:    in.Sources,
		ChunksUsed: in.ChunksUsed,
		FollowUps:  followUps,
	}
}

// buildMessages assembles the prompt: persona, context, optional
// summary, recent history, current question.
func (p *Pipeline) buildMessages(in AnswerInput) []openai.ChatCompletionMessage {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: BuildSystemPrompt(p.businessName, in.Settings)},
		{Role: openai.ChatMessageRoleSystem, Content: BuildContextMessage(in.RAGContext, in.HoursContext)},
	}

	if in.Summary != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: BuildSummaryMessage(in.Summary),
		})
	}

	for _, m := range in.History {
		role := openai.ChatMessageRoleUser
		if m.Role == model.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}

	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: in.Query,
	})
}

// ExtractFollowUps pulls the follow-up suggestion line out of a model
// answer, capped at three questions, and returns the cleaned text.
func ExtractFollowUps(text string) (string, []string) {
	var list string
	if m := followUpBracketPattern.FindStringSubmatch(text); m != nil {
		list = m[1]
		text = followUpBracketPattern.ReplaceAllString(text, "")
	} else if m := followUpLinePattern.FindStringSubmatch(text); m != nil {
		list = m[1]
		text = followUpLinePattern.ReplaceAllString(text, "")
	}

	var questions []string
	for _, q := range strings.Split(list, "|") {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		questions = append(questions, q)
		if len(questions) == 3 {
			break
		}
	}
	return strings.TrimSpace(text), questions
}

// StripCitation removes the source-citation line for display. The raw
// form, citation included, is what history and summarization see.
func StripCitation(text string) string {
	return strings.TrimSpace(citationLinePattern.ReplaceAllString(text, ""))
}
