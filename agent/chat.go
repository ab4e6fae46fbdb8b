package agent

import (
	"context"
	"fmt"

	"lectern/llm"
	"lectern/memory"
	"lectern/session"
	"lectern/streamers"
)

// Chat is a multi-turn interactive session: one session, one mode, many
// inputs. Memory recall happens once at creation; extraction when the chat
// is finished.
type Chat struct {
	engine   *Engine
	mode     *Mode
	provider llm.Provider
	model    string
	sess     *session.Session

	memoryFragment string
}

// NewChat opens an interactive session for the owner in the given mode.
func (e *Engine) NewChat(ctx context.Context, owner string, scope []string, modeName string) (*Chat, error) {
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

	c := &Chat{
		engine:   e,
		mode:     mode,
		provider: provider,
		model:    model,
		sess:     sess,
	}

	if e.memory != nil {
		facts, recallErr := e.memory.Recall(ctx, owner, modeName)
		if recallErr != nil {
			e.logger.Warn("memory recall failed", "owner", owner, "error", recallErr)
		} else {
			c.memoryFragment = memory.InjectionPrompt(facts)
		}
	}

	return c, nil
}

// SessionID returns the underlying session id.
func (c *Chat) SessionID() string {
	return c.sess.ID
}

// Model returns the resolved model name.
func (c *Chat) Model() string {
	return c.model
}

// Send runs the reasoning loop for one input.
func (c *Chat) Send(ctx context.Context, input string, handler streamers.SessionHandler) (*Result, error) {
	opts := []LoopOption{WithLoopLogger(c.engine.logger.Named("loop"))}
	if c.memoryFragment != "" {
		opts = append(opts, WithMemory(c.memoryFragment))
	}
	loop := NewLoop(c.provider, c.model, c.engine.registry, c.engine.modes, c.mode, c.sess, handler, opts...)
	return loop.Run(ctx, input)
}

// Finish extracts durable facts from the conversation into memory.
func (c *Chat) Finish(ctx context.Context) {
	if c.engine.memory == nil {
		return
	}
	if _, err := c.engine.memory.Remember(ctx, c.sess.Owner, c.sess.History()); err != nil {
		c.engine.logger.Warn("memory extraction failed", "owner", c.sess.Owner, "error", err)
	}
}
