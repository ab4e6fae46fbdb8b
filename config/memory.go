package config

import "fmt"

// MemoryConfig tunes the long-term memory subsystem. Dedup threshold, top-K
// and decay are policy knobs, not constants.
type MemoryConfig struct {
	Enabled        bool    `hcl:"enabled,optional"`
	DedupThreshold float64 `hcl:"dedup_threshold,optional"`
	RetrievalTopK  int     `hcl:"retrieval_top_k,optional"`
	DecayRate      float64 `hcl:"decay_rate,optional"`
	// Model names the config model used for fact extraction; empty uses the
	// default model.
	Model string `hcl:"model,optional"`
	// EmbeddingAPIKey authorizes the embedding endpoint. Usually a var ref.
	EmbeddingAPIKey string `hcl:"embedding_api_key,optional"`
}

// Defaults fills in default values for unset fields
func (m *MemoryConfig) Defaults() {
	if m.DedupThreshold == 0 {
		m.DedupThreshold = 0.9
	}
	if m.RetrievalTopK == 0 {
		m.RetrievalTopK = 5
	}
}

func (m *MemoryConfig) Validate() error {
	if m.DedupThreshold < 0 || m.DedupThreshold > 1 {
		return fmt.Errorf("dedup_threshold must be within [0, 1]")
	}
	if m.RetrievalTopK < 0 {
		return fmt.Errorf("retrieval_top_k cannot be negative")
	}
	if m.DecayRate < 0 {
		return fmt.Errorf("decay_rate cannot be negative")
	}
	return nil
}
