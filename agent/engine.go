package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"lectern/config"
	"lectern/llm"
	"lectern/memory"
	"lectern/session"
	"lectern/store"
	"lectern/streamers"
	"lectern/tools"
)

// Collaborators are the out-of-process services the built-in literature
// tools talk to. Nil collaborators leave their tools unregistered.
type Collaborators struct {
	Searcher tools.Searcher
	Library  tools.Library
	Analysis tools.AnalysisWriter
}

// EngineOptions configures engine construction.
type EngineOptions struct {
	// Config is the loaded configuration. Required.
	Config *config.Config
	// Stores overrides the storage bundle; built from config when nil.
	Stores *store.Bundle
	// Collaborators back the built-in literature tools.
	Collaborators Collaborators
	// Provider overrides every model's provider (tests use a mock).
	Provider llm.Provider
	// Embedder overrides the memory embedder (tests use the hash embedder).
	Embedder memory.Embedder
	Logger   hclog.Logger
}

// Engine wires config, providers, tools, modes, stores, and memory into a
// runnable whole.
type Engine struct {
	cfg      *config.Config
	stores   *store.Bundle
	ownStore bool
	registry *tools.Registry
	modes    *ModeSet
	memory   *memory.Service
	logger   hclog.Logger

	providerOverride llm.Provider
	providers        map[string]llm.Provider
	closers          []interface{ Close() error }
}

func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("engine requires a config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	e := &Engine{
		cfg:              opts.Config,
		logger:           logger,
		providerOverride: opts.Provider,
		providers:        make(map[string]llm.Provider),
	}

	if opts.Stores != nil {
		e.stores = opts.Stores
	} else {
		bundle, err := store.NewBundle(opts.Config.Storage)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		e.stores = bundle
		e.ownStore = true
	}

	if err := e.buildRegistry(opts.Collaborators); err != nil {
		e.Close()
		return nil, err
	}
	if err := e.buildModes(); err != nil {
		e.Close()
		return nil, err
	}
	if err := e.buildMemory(ctx, opts.Embedder); err != nil {
		e.Close()
		return nil, err
	}

	return e, nil
}

// Close releases providers and, when the engine opened it, the store.
func (e *Engine) Close() {
	for _, c := range e.closers {
		c.Close()
	}
	if e.ownStore && e.stores != nil {
		e.stores.Close()
	}
}

// Registry exposes the sealed tool registry.
func (e *Engine) Registry() *tools.Registry {
	return e.registry
}

// Modes exposes the finalized mode set.
func (e *Engine) Modes() *ModeSet {
	return e.modes
}

// Stores exposes the storage bundle.
func (e *Engine) Stores() *store.Bundle {
	return e.stores
}

func (e *Engine) buildRegistry(collab Collaborators) error {
	registry := tools.NewRegistry()
	if e.cfg.Limits != nil && e.cfg.Limits.ToolTimeoutSecs > 0 {
		registry.SetCallTimeout(time.Duration(e.cfg.Limits.ToolTimeoutSecs) * time.Second)
	}

	if collab.Searcher != nil {
		if err := registry.Register(&tools.SearchPapersTool{Searcher: collab.Searcher}); err != nil {
			return err
		}
	}
	if collab.Library != nil {
		if err := registry.Register(&tools.GetPaperTool{Library: collab.Library}); err != nil {
			return err
		}
		if err := registry.Register(&tools.ListItemsTool{Library: collab.Library}); err != nil {
			return err
		}
	}
	if collab.Analysis != nil {
		if err := registry.Register(&tools.WriteAnalysisTool{Writer: collab.Analysis}); err != nil {
			return err
		}
		if err := registry.Register(&tools.SaveSummaryTool{Writer: collab.Analysis}); err != nil {
			return err
		}
	}

	for i := range e.cfg.CustomTools {
		if err := registry.Register(e.cfg.CustomTools[i].Build()); err != nil {
			return err
		}
	}

	registry.Seal()
	e.registry = registry
	return nil
}

func (e *Engine) buildModes() error {
	modes := NewModeSet()
	for _, mc := range e.cfg.Modes {
		mode := &Mode{
			Name:          mc.Name,
			Prompt:        mc.Prompt,
			Tools:         mc.Tools,
			Delegates:     mc.Delegates,
			MaxIterations: mc.MaxIterations,
			Batch:         mc.Batch,
		}
		if mode.MaxIterations == 0 && e.cfg.Limits != nil {
			mode.MaxIterations = e.cfg.Limits.MaxIterations
		}
		if err := modes.Register(mode, e.registry); err != nil {
			return err
		}
	}
	if err := modes.Finalize(); err != nil {
		return err
	}
	e.modes = modes
	return nil
}

func (e *Engine) buildMemory(ctx context.Context, embedder memory.Embedder) error {
	mc := e.cfg.Memory
	if mc == nil || !mc.Enabled {
		return nil
	}

	if embedder == nil {
		if mc.EmbeddingAPIKey == "" {
			return fmt.Errorf("memory is enabled but embedding_api_key is not set")
		}
		embedder = memory.NewOpenAIEmbedder(mc.EmbeddingAPIKey)
	}

	provider, model, err := e.providerForModelRef(ctx, mc.Model)
	if err != nil {
		return fmt.Errorf("memory extraction model: %w", err)
	}

	e.memory = memory.NewService(
		e.stores.Facts,
		embedder,
		memory.NewExtractor(provider, model),
		memory.Config{
			DedupThreshold: mc.DedupThreshold,
			RetrievalTopK:  mc.RetrievalTopK,
			DecayRate:      mc.DecayRate,
		},
		e.logger.Named("memory"),
	)
	return nil
}

// providerForModelRef resolves a config model reference (empty = default)
// to a provider instance and the actual model name.
func (e *Engine) providerForModelRef(ctx context.Context, ref string) (llm.Provider, string, error) {
	var m *config.Model
	var err error
	if ref == "" {
		m, err = e.cfg.DefaultModel()
	} else {
		m, err = e.cfg.FindModel(ref)
	}
	if err != nil {
		return nil, "", err
	}

	if e.providerOverride != nil {
		return e.providerOverride, m.Model, nil
	}

	if p, ok := e.providers[m.Name]; ok {
		return p, m.Model, nil
	}

	var p llm.Provider
	switch m.Provider {
	case config.ProviderAnthropic:
		p = llm.NewAnthropicProvider(m.APIKey)
	case config.ProviderOpenAI:
		p = llm.NewOpenAIProvider(m.APIKey)
	case config.ProviderGemini:
		gp, gerr := llm.NewGeminiProvider(ctx, m.APIKey)
		if gerr != nil {
			return nil, "", gerr
		}
		e.closers = append(e.closers, gp)
		p = gp
	default:
		return nil, "", fmt.Errorf("unknown provider: %s", m.Provider)
	}

	e.providers[m.Name] = p
	return p, m.Model, nil
}

// RunSession answers one input in the given mode for the given owner. The
// scope limits which project items the session's tools may touch.
func (e *Engine) RunSession(ctx context.Context, owner string, scope []string, modeName, input string, handler streamers.SessionHandler) (*Result, error) {
	mode, ok := e.modes.Get(modeName)
	if !ok {
		return nil, fmt.Errorf("mode '%s' not found", modeName)
	}

	mc, err := e.cfg.FindMode(modeName)
	if err != nil {
		return nil, err
	}
	provider, model, err := e.providerForModelRef(ctx, mc.Model)
	if err != nil {
		return nil, err
	}

	windowSize := 0
	if e.cfg.Limits != nil {
		windowSize = e.cfg.Limits.WindowSize
	}
	sess, err := session.New(e.stores.Sessions, owner, scope, session.Options{
		Mode:       modeName,
		WindowSize: windowSize,
	})
	if err != nil {
		return nil, err
	}

	loopOpts := []LoopOption{WithLoopLogger(e.logger.Named("loop"))}
	if e.memory != nil {
		facts, recallErr := e.memory.Recall(ctx, owner, input)
		if recallErr != nil {
			e.logger.Warn("memory recall failed", "owner", owner, "error", recallErr)
		} else if fragment := memory.InjectionPrompt(facts); fragment != "" {
			loopOpts = append(loopOpts, WithMemory(fragment))
		}
	}

	loop := NewLoop(provider, model, e.registry, e.modes, mode, sess, handler, loopOpts...)
	result, runErr := loop.Run(ctx, input)

	if e.memory != nil && result != nil && result.Outcome == OutcomeAnswered {
		if _, memErr := e.memory.Remember(ctx, owner, sess.History()); memErr != nil {
			e.logger.Warn("memory extraction failed", "owner", owner, "error", memErr)
		}
	}

	return result, runErr
}

// RunTask runs (or resumes) a batch task over the scope's item ids.
// Resuming with the same task id skips already-completed items.
func (e *Engine) RunTask(ctx context.Context, taskID, owner, modeName, objective string, scope []string, handler streamers.TaskHandler) (*BatchResult, error) {
	mode, ok := e.modes.Get(modeName)
	if !ok {
		return nil, fmt.Errorf("mode '%s' not found", modeName)
	}

	mc, err := e.cfg.FindMode(modeName)
	if err != nil {
		return nil, err
	}
	provider, model, err := e.providerForModelRef(ctx, mc.Model)
	if err != nil {
		return nil, err
	}

	windowSize := 0
	if e.cfg.Limits != nil {
		windowSize = e.cfg.Limits.WindowSize
	}

	runner := NewBatchRunner(provider, model, e.registry, e.modes,
		e.stores.Sessions, e.stores.Tasks,
		WithBatchLogger(e.logger.Named("batch")),
		WithWindowSize(windowSize))

	return runner.Run(ctx, BatchTask{
		TaskID:    taskID,
		Owner:     owner,
		Objective: objective,
		Scope:     scope,
		Mode:      mode,
	}, handler)
}

// TaskStatus returns the persisted state of a task, or nil when unknown.
func (e *Engine) TaskStatus(owner, taskID string) (*store.TaskState, error) {
	return e.stores.Tasks.Load(owner, taskID)
}

// Tasks lists the owner's tasks.
func (e *Engine) Tasks(owner string) ([]store.TaskState, error) {
	return e.stores.Tasks.ListByOwner(owner)
}

