package cmd

import (
	"testing"

	"github.com/aimate/memorycore/internal/config"
)

func TestBuildTierChainWithoutLLMHasNoLLMTiers(t *testing.T) {
	cfg := *config.Default()
	chain, err := buildTierChain(cfg, nil)
	if err != nil {
		t.Fatalf("buildTierChain: %v", err)
	}
	if chain.LLM != nil {
		t.Fatal("expected no Tier 3 without an llm.Client")
	}
	if chain.Cache == nil {
		t.Fatal("expected a response cache regardless of llm availability")
	}
	if chain.Rule == nil || chain.Template == nil {
		t.Fatal("expected rule and template tiers to always be wired")
	}
	if chain.EmergencyText["default"] == "" {
		t.Fatal("expected a default emergency text")
	}
}
