package llm

// Family identifies a model provider family. Token counting rules and
// output-estimate ratios differ per family, so everything that accounts
// for tokens dispatches on it.
type Family string

const (
	FamilyOpenAI    Family = "openai"
	FamilyAnthropic Family = "anthropic"
)

// ModelInfo describes one serving model exposed to clients.
type ModelInfo struct {
	// ID is the client-facing model identifier.
	ID string
	// Name is the provider-side model name sent upstream.
	Name   string
	Family Family
	// ContextWindow is the model's maximum context size in tokens.
	ContextWindow int
}

// Catalog maps client model IDs to provider models and holds the per-family
// output-token estimate ratios.
type Catalog struct {
	models       map[string]ModelInfo
	outputRatios map[Family]float64
}

// Default output/input ratios: OpenAI-family responses tend to run about a
// third of the prompt length, Anthropic-family models with their larger
// context windows closer to half.
const (
	defaultOpenAIRatio    = 1.0 / 3.0
	defaultAnthropicRatio = 1.0 / 2.0
)

// NewCatalog builds the default model catalog. Zero ratio arguments keep the
// family defaults.
func NewCatalog(openAIRatio, anthropicRatio float64) *Catalog {
	if openAIRatio == 0 {
		openAIRatio = defaultOpenAIRatio
	}
	if anthropicRatio == 0 {
		anthropicRatio = defaultAnthropicRatio
	}

	models := []ModelInfo{
		{ID: "chat-model-gpt-4o", Name: "gpt-4o", Family: FamilyOpenAI, ContextWindow: 128000},
		{ID: "chat-model-gpt-4", Name: "gpt-4", Family: FamilyOpenAI, ContextWindow: 8192},
		{ID: "chat-model-gpt-3.5-turbo", Name: "gpt-3.5-turbo", Family: FamilyOpenAI, ContextWindow: 4096},
		{ID: "claude-sonnet", Name: "claude-3-5-sonnet-20240620", Family: FamilyAnthropic, ContextWindow: 200000},
		{ID: "claude-haiku", Name: "claude-3-haiku-20240307", Family: FamilyAnthropic, ContextWindow: 200000},
	}

	byID := make(map[string]ModelInfo, len(models))
	for _, m := range models {
		byID[m.ID] = m
	}

	return &Catalog{
		models: byID,
		outputRatios: map[Family]float64{
			FamilyOpenAI:    openAIRatio,
			FamilyAnthropic: anthropicRatio,
		},
	}
}

// Resolve returns the model info for a client model ID. Unknown IDs are
// treated as OpenAI-family models served under their own name, so a new
// upstream model works without a catalog entry.
func (c *Catalog) Resolve(modelID string) ModelInfo {
	if m, ok := c.models[modelID]; ok {
		return m
	}
	return ModelInfo{ID: modelID, Name: modelID, Family: FamilyOpenAI, ContextWindow: 4096}
}

// OutputRatio returns the output-token estimate ratio for a family.
func (c *Catalog) OutputRatio(f Family) float64 {
	if r, ok := c.outputRatios[f]; ok {
		return r
	}
	return defaultOpenAIRatio
}
