package tokens

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/parley-ai/parley/internal/llm"
)

// Estimate is the pre-call token projection for one completion request.
type Estimate struct {
	InputTokens           int `json:"input_tokens"`
	EstimatedOutputTokens int `json:"estimated_output_tokens"`
	TotalTokens           int `json:"total_tokens"`
}

// Estimator approximates prompt token counts before the model call, using
// the counting rules of the serving model's family. Output tokens are not
// known yet and are projected as a per-family fraction of the input.
type Estimator struct {
	catalog *llm.Catalog
}

func NewEstimator(catalog *llm.Catalog) *Estimator {
	return &Estimator{catalog: catalog}
}

// Estimate counts input tokens for the conversation plus the prepended
// system prompt. Errors are propagated; a silent zero would disable quota
// enforcement downstream.
func (e *Estimator) Estimate(messages []llm.PromptMessage, modelID, systemPrompt string) (*Estimate, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages to count for model %q", modelID)
	}

	all := make([]llm.PromptMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		all = append(all, llm.PromptMessage{Role: "system", Content: systemPrompt})
	}
	all = append(all, messages...)

	model := e.catalog.Resolve(modelID)

	var input int
	switch model.Family {
	case llm.FamilyAnthropic:
		input = countAnthropic(all)
	case llm.FamilyOpenAI:
		input = countOpenAI(all)
	default:
		return nil, fmt.Errorf("no token counter for model family %q", model.Family)
	}

	output := int(math.Ceil(float64(input) * e.catalog.OutputRatio(model.Family)))

	return &Estimate{
		InputTokens:           input,
		EstimatedOutputTokens: output,
		TotalTokens:           input + output,
	}, nil
}

// OpenAI-family message framing: every message costs a fixed wrapper on top
// of its role and content, and the reply is primed with the assistant role.
const (
	openAIPerMessage   = 4
	openAIReplyPriming = 3
	openAICharsPerTok  = 4.0

	anthropicPerMessage  = 5
	anthropicCharsPerTok = 3.5
)

func countOpenAI(messages []llm.PromptMessage) int {
	total := openAIReplyPriming
	for _, m := range messages {
		total += openAIPerMessage
		total += approxTokens(m.Role, openAICharsPerTok)
		total += approxTokens(m.Content, openAICharsPerTok)
	}
	return total
}

func countAnthropic(messages []llm.PromptMessage) int {
	var total int
	for _, m := range messages {
		total += anthropicPerMessage
		total += approxTokens(m.Role, anthropicCharsPerTok)
		total += approxTokens(m.Content, anthropicCharsPerTok)
	}
	return total
}

func approxTokens(s string, charsPerToken float64) int {
	if s == "" {
		return 0
	}
	return int(math.Ceil(float64(utf8.RuneCountInString(s)) / charsPerToken))
}
