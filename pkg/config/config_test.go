package config

import (
	"testing"

	"nodechain/pipeline"
)

func TestSkipFlagsParsesKnownNamesAndIgnoresUnknown(t *testing.T) {
	c := &Config{}
	c.Chain.DefaultSkipFlags = []string{"merkle", "tapos", "not-a-real-flag"}

	got := c.SkipFlags()
	want := pipeline.SkipMerkle | pipeline.SkipTaPoS
	if got != want {
		t.Errorf("SkipFlags() = %v, want %v", got, want)
	}
	if !got.Has(pipeline.SkipMerkle) || !got.Has(pipeline.SkipTaPoS) {
		t.Error("SkipFlags() result should carry both recognized bits")
	}
}

func TestSkipFlagsEmptyIsSkipNothing(t *testing.T) {
	c := &Config{}
	if got := c.SkipFlags(); got != pipeline.SkipNothing {
		t.Errorf("SkipFlags() on an empty list = %v, want SkipNothing", got)
	}
}

func TestChainConfigOverridesOnlyWhenSet(t *testing.T) {
	c := &Config{}
	def := pipeline.DefaultChainConfig()

	// No overrides: ChainConfig should match the pipeline defaults except
	// for the genesis timestamp, which the caller always supplies.
	cfg := c.ChainConfig(def.Genesis)
	if cfg.BlockInterval != def.BlockInterval || cfg.ConfirmationDepth != def.ConfirmationDepth ||
		cfg.MaxBlockSize != def.MaxBlockSize || cfg.Election != def.Election {
		t.Errorf("ChainConfig() with no overrides = %+v, want %+v", cfg, def)
	}

	c.Chain.ConfirmationDepth = 42
	c.Chain.NumDPoSProducers = 7
	cfg = c.ChainConfig(def.Genesis)
	if cfg.ConfirmationDepth != 42 {
		t.Errorf("ConfirmationDepth override not applied: got %d", cfg.ConfirmationDepth)
	}
	if cfg.Election.NumDPoS != 7 {
		t.Errorf("NumDPoS override not applied: got %d", cfg.Election.NumDPoS)
	}
	if cfg.MaxBlockSize != def.MaxBlockSize {
		t.Errorf("unset MaxBlockSize should still fall back to the default, got %d", cfg.MaxBlockSize)
	}
}
