package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/emberworks/ember-go/index"
	"github.com/emberworks/ember-go/retrieve"
)

// PromptConfig shapes the system prompt sent with every generation call.
type PromptConfig struct {
	// AssistantName is how the model refers to itself. Default: "Ember".
	AssistantName string

	// UserName is how the model addresses the user. Default: "friend".
	UserName string

	// Persona replaces the default persona line when set.
	Persona string

	// ContextBudget caps the retrieved-context block in characters,
	// dropping the lowest-scoring chunks first. Default: 4000.
	ContextBudget int
}

func (c PromptConfig) withDefaults() PromptConfig {
	if c.AssistantName == "" {
		c.AssistantName = "Ember"
	}
	if c.UserName == "" {
		c.UserName = "friend"
	}
	if c.ContextBudget <= 0 {
		c.ContextBudget = 4000
	}
	return c
}

// BuildSystemPrompt assembles the system prompt: persona, current time, and
// the retrieved context with each chunk tagged by origin. Memory chunks come
// before corpus chunks, each group highest score first.
func BuildSystemPrompt(cfg PromptConfig, rctx retrieve.Result, now time.Time) string {
	cfg = cfg.withDefaults()

	var b strings.Builder
	if cfg.Persona != "" {
		b.WriteString(cfg.Persona)
	} else {
		fmt.Fprintf(&b, "You are %s, a helpful assistant. The user's name is %s.\n", cfg.AssistantName, cfg.UserName)
		b.WriteString("Be concise, accurate, and friendly. If you do not know something, say so.")
	}
	fmt.Fprintf(&b, "\nCurrent date and time: %s.", now.Format("Monday, 2 January 2006, 15:04"))

	chunks := budgetChunks(rctx.Chunks, cfg.ContextBudget)
	if len(chunks) > 0 {
		b.WriteString("\n\nRelevant stored knowledge, most relevant first. Prefer it over guessing when it answers the question:\n")
		for _, c := range chunks {
			fmt.Fprintf(&b, "\n[%s] %s\n", originTag(c.Origin), c.Text)
		}
	}
	return b.String()
}

func originTag(o index.Origin) string {
	if o == index.OriginMemory {
		return "conversation memory"
	}
	return "knowledge base"
}

// budgetChunks drops the lowest-scoring chunks until the combined text fits
// the budget, preserving the order of the rest.
func budgetChunks(chunks []retrieve.Chunk, budget int) []retrieve.Chunk {
	total := 0
	for _, c := range chunks {
		total += len(c.Text)
	}
	if total <= budget {
		return chunks
	}

	kept := make([]retrieve.Chunk, len(chunks))
	copy(kept, chunks)
	for total > budget && len(kept) > 1 {
		lowest := 0
		for i, c := range kept {
			if c.Score <= kept[lowest].Score {
				lowest = i
			}
		}
		total -= len(kept[lowest].Text)
		kept = append(kept[:lowest], kept[lowest+1:]...)
	}
	if len(kept) == 1 && len(kept[0].Text) > budget {
		kept[0].Text = truncateRunes(kept[0].Text, budget)
	}
	return kept
}

// truncateRunes cuts s to at most n bytes, backing off to a rune boundary.
func truncateRunes(s string, n int) string {
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
