// Package prompt assembles bounded message lists for LLM completion requests
package prompt

import (
	"log"
	"strings"

	"companion-backend/llm"
	"companion-backend/storage"
)

// Token estimation uses a fixed characters-per-token heuristic rather than an
// exact tokenizer. The divisor-of-4 rule is tunable policy with roughly a
// ±20% error margin; the safety margin and hard ceiling absorb it.
const (
	charsPerToken       = 4
	perMessageOverhead  = 15
	userMessageMargin   = 50
	HardTokenCeiling    = 4000
	ReducedContextTurns = 2
)

// Policy is a provider-specific length budget. Strict policies compress an
// over-budget instruction to a single sentence; generous ones keep the
// opening paragraph plus truncated bullets.
type Policy struct {
	MaxInstructionTokens int
	MaxContextTokens     int
	Strict               bool
}

// defaultPolicies mirror the cost profiles of the configured providers.
// Unknown providers get the strict budget.
var defaultPolicies = map[string]Policy{
	"groq":   {MaxInstructionTokens: 150, MaxContextTokens: 2000, Strict: true},
	"openai": {MaxInstructionTokens: 500, MaxContextTokens: 4000, Strict: false},
}

// Builder assembles the persona instruction, recent turns and the new user
// message into an ordered message list within a provider's token budget.
type Builder struct {
	policies map[string]Policy
}

// NewBuilder creates a builder with the default provider policies
func NewBuilder() *Builder {
	return &Builder{policies: defaultPolicies}
}

// PolicyFor returns the length policy for a provider name
func (b *Builder) PolicyFor(provider string) Policy {
	if p, ok := b.policies[provider]; ok {
		return p
	}
	return b.policies["groq"]
}

// Build composes the full message sequence: one system entry (possibly
// compressed instruction), the most recent turns that fit the remaining
// context budget in chronological order, and the new user message last.
func (b *Builder) Build(persona storage.Character, recentTurns []storage.Turn, userMessage, language, provider string) []llm.Message {
	policy := b.PolicyFor(provider)
	instruction := b.instruction(persona, language, policy)

	messages := make([]llm.Message, 0, len(recentTurns)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: instruction})
	messages = append(messages, b.fitContext(recentTurns, instruction, policy)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})
	return messages
}

// instruction resolves the persona template and compresses it to the
// provider's instruction budget when needed.
func (b *Builder) instruction(persona storage.Character, language string, policy Policy) string {
	instruction := lookupTemplate(persona.PersonalityType, language, persona.Name)
	if instruction == "" && persona.BasePrompt != "" {
		instruction = persona.BasePrompt
	}
	if instruction == "" {
		instruction = synthesizeInstruction(persona.Name, persona.PersonalityType, language)
		log.Printf("[PROMPT] Synthesized instruction for character %d (%s)", persona.ID, persona.PersonalityType)
	}

	if EstimateTokens(instruction) <= policy.MaxInstructionTokens {
		return instruction
	}

	if policy.Strict {
		return compressConcise(persona)
	}
	return compressBalanced(instruction, policy.MaxInstructionTokens)
}

// fitContext greedily includes the most recent turns, newest first, while the
// running estimate stays under the remaining context budget, then restores
// chronological order.
func (b *Builder) fitContext(turns []storage.Turn, instruction string, policy Policy) []llm.Message {
	if len(turns) == 0 {
		return nil
	}

	available := policy.MaxContextTokens - EstimateTokens(instruction) - userMessageMargin
	if available <= 0 {
		return nil
	}

	// Scan newest to oldest, prepending accepted turns.
	var fitted []llm.Message
	used := 0
	for i := len(turns) - 1; i >= 0; i-- {
		cost := EstimateTokens(turns[i].Content)
		if used+cost > available {
			break
		}
		fitted = append([]llm.Message{{Role: turns[i].Role, Content: turns[i].Content}}, fitted...)
		used += cost
	}
	return fitted
}

// compressConcise reduces an instruction to a single templated sentence
// retaining the persona name and one trait.
func compressConcise(persona storage.Character) string {
	trait := persona.PersonalityType
	if trait == "" {
		trait = "helpful"
	}
	return "You are " + persona.Name + ", a " + trait + " AI companion. " +
		"Respond in the user's language. Keep responses under 100 words unless asked for more. " +
		"Be warm, helpful, and engaging."
}

// compressBalanced keeps the opening paragraph plus truncated trait and style
// bullets, trimming bullets until the instruction fits the budget.
func compressBalanced(instruction string, maxTokens int) string {
	paragraphs := strings.Split(instruction, "\n\n")
	result := paragraphs[0]

	var bullets []string
	for _, p := range paragraphs[1:] {
		for _, line := range strings.Split(p, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "-") {
				bullets = append(bullets, line)
			}
		}
	}

	for _, bullet := range bullets {
		candidate := result + "\n" + bullet
		if EstimateTokens(candidate) > maxTokens {
			break
		}
		result = candidate
	}

	// The opening paragraph alone may still exceed the budget.
	if EstimateTokens(result) > maxTokens {
		result = truncateToTokens(result, maxTokens)
	}
	return result
}

// truncateToTokens hard-truncates text to the estimated token budget
func truncateToTokens(text string, maxTokens int) string {
	maxChars := maxTokens * charsPerToken
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars]
}

// EstimateTokens estimates the token count of a string
func EstimateTokens(s string) int {
	return len(s) / charsPerToken
}

// EstimateTotal estimates the token count of a message list, including a
// fixed per-message overhead for roles and formatting.
func EstimateTotal(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	return total/charsPerToken + len(messages)*perMessageOverhead
}
