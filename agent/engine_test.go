package agent_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"lectern/agent"
	"lectern/config"
	"lectern/llm"
	"lectern/memory"
	"lectern/store"
	"lectern/tools"
)

type fakeSearcher struct{}

func (fakeSearcher) Search(ctx context.Context, query string, filters map[string]string, topK int) ([]tools.PaperHit, error) {
	return []tools.PaperHit{{ID: "p-1", Title: "A Survey", Score: 0.9}}, nil
}

type fakeLibrary struct{}

func (fakeLibrary) GetPaper(ctx context.Context, owner, paperID string) (*tools.Paper, error) {
	return &tools.Paper{ID: paperID, Title: "A Survey", Abstract: "About things."}, nil
}

func (fakeLibrary) ListItems(ctx context.Context, owner string, scope []string) ([]string, error) {
	return scope, nil
}

type fakeAnalysis struct {
	summaries map[string]string
}

func (f *fakeAnalysis) WriteAnalysis(ctx context.Context, owner string, row tools.AnalysisRow) error {
	return nil
}

func (f *fakeAnalysis) SaveSummary(ctx context.Context, owner, itemID, summary string) error {
	if f.summaries == nil {
		f.summaries = make(map[string]string)
	}
	f.summaries[itemID] = summary
	return nil
}

var _ = Describe("Engine", func() {
	var (
		cfg    *config.Config
		bundle *store.Bundle
	)

	BeforeEach(func() {
		bundle = store.NewMemoryBundle()
		cfg = &config.Config{
			Models: []config.Model{{
				Name: "main", Provider: config.ProviderOpenAI, Model: "gpt-test", APIKey: "k", Default: true,
			}},
			Modes: []config.ModeConfig{{
				Name:   "general",
				Prompt: "You are a literature review assistant.",
				Tools:  []string{"search_papers", "get_paper", "list_items"},
			}},
			Storage: &config.StorageConfig{},
			Memory:  &config.MemoryConfig{},
			Limits:  &config.LimitsConfig{},
		}
		cfg.Storage.Defaults()
		cfg.Memory.Defaults()
		cfg.Limits.Defaults()
	})

	newEngine := func(mock *llm.MockProvider) *agent.Engine {
		engine, err := agent.NewEngine(context.Background(), agent.EngineOptions{
			Config: cfg,
			Stores: bundle,
			Collaborators: agent.Collaborators{
				Searcher: fakeSearcher{},
				Library:  fakeLibrary{},
				Analysis: &fakeAnalysis{},
			},
			Provider: mock,
			Embedder: memory.NewHashEmbedder(),
		})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(engine.Close)
		return engine
	}

	It("registers the built-in tools for the wired collaborators", func() {
		engine := newEngine(llm.NewMockProvider())
		Expect(engine.Registry().Names()).To(ConsistOf(
			"search_papers", "get_paper", "list_items", "write_analysis", "save_summary",
		))
	})

	It("registers config-declared HTTP tools alongside the built-ins", func() {
		cfg.CustomTools = []config.CustomTool{{
			Name:   "arxiv_search",
			Method: "GET",
			URL:    "https://example.org/q=${inputs.query}",
		}}
		engine := newEngine(llm.NewMockProvider())
		Expect(engine.Registry().Names()).To(ContainElement("arxiv_search"))
	})

	It("rejects a mode whose tool subset names an unregistered tool", func() {
		cfg.Modes[0].Tools = []string{"search_papers", "get_paper", "not_registered"}
		_, err := agent.NewEngine(context.Background(), agent.EngineOptions{
			Config:        cfg,
			Stores:        bundle,
			Collaborators: agent.Collaborators{Searcher: fakeSearcher{}, Library: fakeLibrary{}, Analysis: &fakeAnalysis{}},
			Provider:      llm.NewMockProvider(),
		})
		Expect(err).To(MatchError(ContainSubstring("unknown tool 'not_registered'")))
	})

	It("runs a session end to end against the collaborators", func() {
		mock := llm.NewMockProvider(
			searchResponse,
			answerResponse,
		)
		engine := newEngine(mock)

		res, err := engine.RunSession(context.Background(), "alice", []string{"item-1"}, "general",
			"Find surveys about sparse autoencoders.", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcome).To(Equal(agent.OutcomeAnswered))

		sessions, err := bundle.Sessions.GetSessionsByOwner("alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(sessions).To(HaveLen(1))
		Expect(sessions[0].Status).To(Equal("completed"))
	})

	It("extracts memory facts after an answered session", func() {
		cfg.Memory.Enabled = true
		mock := llm.NewMockProvider(
			answerResponse,
			`[{"text": "User researches sparse autoencoders.", "type": "semantic", "importance": 0.7}]`,
		)
		engine := newEngine(mock)

		res, err := engine.RunSession(context.Background(), "alice", nil, "general", "hello", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcome).To(Equal(agent.OutcomeAnswered))

		facts, err := bundle.Facts.ListByOwner("alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(HaveLen(1))
		Expect(facts[0].Text).To(ContainSubstring("sparse autoencoders"))
	})

	It("fails fast for unknown modes", func() {
		engine := newEngine(llm.NewMockProvider())
		_, err := engine.RunSession(context.Background(), "alice", nil, "ghost", "hi", nil)
		Expect(err).To(MatchError(ContainSubstring("mode 'ghost' not found")))
	})

	It("reports task status only for known tasks", func() {
		engine := newEngine(llm.NewMockProvider())

		state, err := engine.TaskStatus("alice", "missing")
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(BeNil())

		tasks, err := engine.Tasks("alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(tasks).To(BeEmpty())
	})
})
