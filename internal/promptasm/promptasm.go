// Package promptasm implements PromptAssembler (C7): five-layer,
// token-budgeted prompt composition with the memory-index/fulltext
// attention-preservation strategy and the recall-token protocol.
// Generalized from pkg/memory/extractor.go's FormatContextForLLM (a flat
// "- <content>" list) into budgeted, ordered layers.
package promptasm

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/aimate/memorycore/internal/config"
	"github.com/aimate/memorycore/internal/retriever"
	"github.com/aimate/memorycore/internal/workingmemory"
)

// RecallTokenPrefix is the opening of the "[RECALL:#<id>]" token the model
// may emit to request the full content of an indexed-but-not-expanded
// memory; callers scan the model's output for it before returning.
const RecallTokenPrefix = "[RECALL:#"

// defaultNoFabricateDirective is injected in place of the index/fulltext
// blocks when HybridRetriever signals no_relevant_memory=true and
// cfg.NoFabricateText is empty.
const defaultNoFabricateDirective = "You have no relevant memory of this. Say so plainly; do not invent details."

// Input bundles everything Assemble needs to build one prompt.
type Input struct {
	Mode            string
	Identity        string
	Environment     string
	LongTermSummary string
	Working         []workingmemory.ConversationTurn
	Retrieval       retriever.Result
	Instructions    string
	OutputFormat    string
	Now             time.Time
}

var sharedEncoder *tiktoken.Tiktoken

func init() {
	sharedEncoder, _ = tiktoken.GetEncoding("cl100k_base")
}

func estimateTokens(s string) int {
	if sharedEncoder != nil {
		return len(sharedEncoder.Encode(s, nil, nil))
	}
	return (len(s) + 3) / 4
}

// Assemble composes the final prompt string under the mode's token
// budget: each layer is truncated to its own share of the budget, and the
// working-memory block drops its oldest turns until it fits
// budget.Working.
func Assemble(cfg config.PromptConfig, in Input) (string, error) {
	budget, ok := cfg.Budgets[in.Mode]
	if !ok {
		return "", fmt.Errorf("promptasm: unknown mode %q", in.Mode)
	}

	identity := truncateToBudget(in.Identity, budget.Identity)
	environment := truncateToBudget(in.Environment, budget.Environment)
	longTerm := truncateToBudget(in.LongTermSummary, budget.LongTermSummary)

	var longTermBlock strings.Builder
	longTermBlock.WriteString(longTerm)

	if in.Retrieval.NoRelevantMemory {
		directive := cfg.NoFabricateText
		if directive == "" {
			directive = defaultNoFabricateDirective
		}
		longTermBlock.WriteString("\n")
		longTermBlock.WriteString(directive)
	} else {
		indexCount := cfg.MemoryIndexCount
		if indexCount <= 0 {
			indexCount = 30
		}
		fulltextCount := cfg.MemoryFulltextCount
		if fulltextCount <= 0 {
			fulltextCount = 3
		}

		indexBlock := buildMemoryIndex(in.Retrieval.Candidates, indexCount, in.Now, cfg.StarImportanceMin)
		longTermBlock.WriteString("\n")
		longTermBlock.WriteString(truncateToBudget(indexBlock, budget.MemoryIndex))

		fulltextBlock := buildFulltext(in.Retrieval.Candidates, fulltextCount)
		longTermBlock.WriteString("\n")
		longTermBlock.WriteString(truncateToBudget(fulltextBlock, budget.MemoryFulltext))
	}

	instructions := in.Instructions
	if !in.Retrieval.NoRelevantMemory && len(in.Retrieval.Candidates) > 0 {
		instructions += "\nYou may emit " + RecallTokenPrefix + "id] to request the full content of any indexed memory not yet expanded."
	}
	instructions = truncateToBudget(instructions, budget.Instructions)

	footer := truncateToBudget(in.OutputFormat, budget.ReservedOutput)

	working := fitWorkingMemory(in.Working, budget.Working)

	var out strings.Builder
	out.WriteString(identity)
	out.WriteString("\n\n")
	writeWorking(&out, working)
	out.WriteString("\n\n")
	out.WriteString(environment)
	out.WriteString("\n\n")
	out.WriteString(longTermBlock.String())
	out.WriteString("\n\n")
	out.WriteString(instructions)
	out.WriteString("\n\n")
	out.WriteString(footer)

	return out.String(), nil
}

func writeWorking(out *strings.Builder, turns []workingmemory.ConversationTurn) {
	for _, t := range turns {
		out.WriteString(t.Role)
		out.WriteString(": ")
		out.WriteString(t.Content)
		out.WriteString("\n")
	}
}

// fitWorkingMemory drops the oldest turns until the rendered block fits
// the budget, per the spec's explicit "truncates (oldest first)" rule.
func fitWorkingMemory(turns []workingmemory.ConversationTurn, budget int) []workingmemory.ConversationTurn {
	current := turns
	for len(current) > 0 {
		var b strings.Builder
		writeWorking(&b, current)
		if estimateTokens(b.String()) <= budget {
			break
		}
		current = current[1:]
	}
	return current
}

func truncateToBudget(s string, budget int) string {
	if budget <= 0 || estimateTokens(s) <= budget {
		return s
	}
	lo, hi := 0, len(s)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if estimateTokens(s[:mid]) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return s[:lo]
}

func buildMemoryIndex(candidates []retriever.Candidate, count int, now time.Time, starMin float64) string {
	if starMin == 0 {
		starMin = 0.8
	}
	if len(candidates) > count {
		candidates = candidates[:count]
	}
	var b strings.Builder
	for _, c := range candidates {
		star := ""
		if c.Memory.Importance >= starMin {
			star = " ⭐"
		}
		b.WriteString(fmt.Sprintf("#%s [%s] %s (importance %.1f)%s\n",
			c.Memory.ID, relativeTime(c.Memory.CreatedAt, now), summarize(c.Memory.Content, 20), c.Memory.Importance, star))
	}
	return b.String()
}

func buildFulltext(candidates []retriever.Candidate, count int) string {
	if len(candidates) > count {
		candidates = candidates[:count]
	}
	var b strings.Builder
	for _, c := range candidates {
		b.WriteString(fmt.Sprintf("#%s: %s\n", c.Memory.ID, c.Memory.Content))
	}
	return b.String()
}

func summarize(content string, maxRunes int) string {
	r := []rune(content)
	if len(r) <= maxRunes {
		return content
	}
	return string(r[:maxRunes]) + "…"
}

func relativeTime(createdAt int64, now time.Time) string {
	age := now.Sub(time.UnixMilli(createdAt))
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	case age < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	default:
		return fmt.Sprintf("%dmo ago", int(age.Hours()/24/30))
	}
}
