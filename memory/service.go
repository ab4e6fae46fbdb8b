package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"lectern/llm"
	"lectern/store"
)

// Config holds the tunables of the memory subsystem. Decay and top-K are
// deliberately configuration, not constants.
type Config struct {
	// DedupThreshold is the cosine similarity above which a new fact is
	// treated as a duplicate of an existing one.
	DedupThreshold float64
	// RetrievalTopK is how many facts are injected at session start.
	RetrievalTopK int
	// DecayRate discounts stale facts during retrieval, per day since last
	// access. 0 disables decay.
	DecayRate float64
}

func DefaultConfig() Config {
	return Config{
		DedupThreshold: 0.9,
		RetrievalTopK:  5,
	}
}

// Service maintains long-term facts per owner: extraction after a session,
// dedup/merge on insert, similarity retrieval at session start.
type Service struct {
	facts     store.FactStore
	embedder  Embedder
	extractor *Extractor
	cfg       Config
	logger    hclog.Logger
}

func NewService(facts store.FactStore, embedder Embedder, extractor *Extractor, cfg Config, logger hclog.Logger) *Service {
	if cfg.DedupThreshold <= 0 {
		cfg.DedupThreshold = DefaultConfig().DedupThreshold
	}
	if cfg.RetrievalTopK <= 0 {
		cfg.RetrievalTopK = DefaultConfig().RetrievalTopK
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{
		facts:     facts,
		embedder:  embedder,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Remember extracts durable facts from a finished session and stores them,
// merging near-duplicates instead of accumulating copies. Returns how many
// facts were written (new or updated).
func (s *Service) Remember(ctx context.Context, owner string, transcript []llm.Message) (int, error) {
	candidates, err := s.extractor.Extract(ctx, transcript)
	if err != nil {
		return 0, fmt.Errorf("extracting facts: %w", err)
	}

	written := 0
	for _, c := range candidates {
		if err := s.remember(ctx, owner, c); err != nil {
			s.logger.Warn("dropping fact", "owner", owner, "error", err)
			continue
		}
		written++
	}
	return written, nil
}

func (s *Service) remember(ctx context.Context, owner string, c Candidate) error {
	embedding, err := s.embedder.Embed(ctx, c.Text)
	if err != nil {
		return fmt.Errorf("embedding fact: %w", err)
	}

	matches, err := s.facts.SearchSimilar(owner, embedding, 1)
	if err != nil {
		return fmt.Errorf("similarity search: %w", err)
	}

	now := time.Now()

	if len(matches) > 0 && matches[0].Score >= s.cfg.DedupThreshold {
		// Near-duplicate. A changed text is a contradiction of the stored
		// fact: the new wording replaces the old outright instead of both
		// surviving. Identical text just refreshes the metadata.
		existing := matches[0].Fact
		existing.Text = c.Text
		existing.Embedding = embedding
		existing.FactType = c.FactType
		existing.Importance = math.Max(existing.Importance, c.Importance)
		existing.LastAccessedAt = now
		return s.facts.Upsert(&existing)
	}

	return s.facts.Upsert(&store.Fact{
		Owner:          owner,
		Text:           c.Text,
		Embedding:      embedding,
		FactType:       c.FactType,
		Importance:     c.Importance,
		LastAccessedAt: now,
	})
}

// Recall returns the owner's facts most relevant to the query, best first,
// and bumps their access counts.
func (s *Service) Recall(ctx context.Context, owner, query string) ([]store.Fact, error) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	// Over-fetch so decay re-ranking has something to demote.
	matches, err := s.facts.SearchSimilar(owner, embedding, s.cfg.RetrievalTopK*2)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	facts := s.rank(matches)
	if len(facts) > s.cfg.RetrievalTopK {
		facts = facts[:s.cfg.RetrievalTopK]
	}

	ids := make([]string, len(facts))
	for i, f := range facts {
		ids[i] = f.ID
	}
	if err := s.facts.TouchAccess(owner, ids); err != nil {
		s.logger.Warn("could not bump fact access counts", "owner", owner, "error", err)
	}

	return facts, nil
}

// rank orders matches by similarity discounted by staleness.
func (s *Service) rank(matches []store.FactMatch) []store.Fact {
	if s.cfg.DecayRate > 0 {
		now := time.Now()
		for i := range matches {
			ageDays := now.Sub(matches[i].Fact.LastAccessedAt).Hours() / 24
			if ageDays > 0 {
				matches[i].Score *= math.Exp(-s.cfg.DecayRate * ageDays)
			}
		}
		sort.Slice(matches, func(i, j int) bool {
			return matches[i].Score > matches[j].Score
		})
	}

	facts := make([]store.Fact, len(matches))
	for i, m := range matches {
		facts[i] = m.Fact
	}
	return facts
}

// InjectionPrompt renders recalled facts as a system-prompt fragment for
// the reasoning step. Returns "" when there is nothing to inject.
func InjectionPrompt(facts []store.Fact) string {
	if len(facts) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("What you remember about this user from earlier sessions:\n")
	for _, f := range facts {
		sb.WriteString(fmt.Sprintf("- %s\n", f.Text))
	}
	return strings.TrimRight(sb.String(), "\n")
}
