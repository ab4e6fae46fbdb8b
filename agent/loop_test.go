package agent_test

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"lectern/agent"
	"lectern/llm"
	"lectern/session"
	"lectern/store"
)

const (
	answerResponse = "<REASONING>enough gathered</REASONING>\n<ANSWER>Here is what I found.</ANSWER>"

	searchResponse = "<REASONING>need sources</REASONING>\n" +
		"<ACTION>search_papers</ACTION>\n" +
		"<ACTION_INPUT>{\"query\": \"sparse autoencoders\"}</ACTION_INPUT>"
)

var _ = Describe("Loop", func() {
	var (
		bundle *store.Bundle
		mode   *agent.Mode
	)

	BeforeEach(func() {
		bundle = store.NewMemoryBundle()
		mode = &agent.Mode{
			Name:   "general",
			Prompt: "You are a literature review assistant.",
			Tools:  []string{"search_papers", "get_paper", "save_note"},
		}
	})

	newSession := func() *session.Session {
		sess, err := session.New(bundle.Sessions, "alice", []string{"tab-1"}, session.Options{Mode: mode.Name})
		Expect(err).NotTo(HaveOccurred())
		return sess
	}

	run := func(mock *llm.MockProvider, handler *recorder, modes ...*agent.Mode) (*agent.Result, error, map[string]*stubTool, *session.Session) {
		registry, stubs := newTestRegistry("search_papers", "get_paper", "save_note")
		if len(modes) == 0 {
			modes = []*agent.Mode{mode}
		}
		set := newTestModes(registry, modes...)
		sess := newSession()
		loop := agent.NewLoop(mock, "mock-model", registry, set, modes[0], sess, handler)
		res, err := loop.Run(context.Background(), "Survey sparse autoencoder papers.")
		return res, err, stubs, sess
	}

	It("finishes on an ANSWER decision and emits the terminal event sequence", func() {
		mock := llm.NewMockProvider(answerResponse)
		handler := &recorder{}

		res, err, _, _ := run(mock, handler)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcome).To(Equal(agent.OutcomeAnswered))
		Expect(res.Answer).To(Equal("Here is what I found."))
		Expect(res.Steps).To(Equal(1))
		Expect(handler.all()).To(Equal([]string{
			"thinking:1", "synthesizing", "message", "message_end",
		}))
	})

	It("executes a tool, folds the observation back, then answers", func() {
		mock := llm.NewMockProvider(searchResponse, answerResponse)
		handler := &recorder{}

		res, err, stubs, sess := run(mock, handler)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcome).To(Equal(agent.OutcomeAnswered))
		Expect(res.Steps).To(Equal(2))

		calls := stubs["search_papers"].calls()
		Expect(calls).To(HaveLen(1))
		Expect(calls[0].Owner).To(Equal("alice"))
		Expect(calls[0].Scope).To(Equal([]string{"tab-1"}))

		var observed bool
		for _, msg := range sess.History() {
			if msg.Role == llm.RoleUser && strings.Contains(msg.Content, "<OBSERVATION>") {
				observed = true
				Expect(msg.Content).To(ContainSubstring("sparse autoencoders"))
			}
		}
		Expect(observed).To(BeTrue())

		Expect(handler.all()).To(Equal([]string{
			"thinking:1",
			"tool_selected:search_papers",
			"tool_executing:search_papers",
			"tool_result:search_papers:ok",
			"thinking:2",
			"synthesizing", "message", "message_end",
		}))
	})

	It("never lets model-supplied identity args reach the tool", func() {
		mock := llm.NewMockProvider(
			"<ACTION>search_papers</ACTION>\n"+
				"<ACTION_INPUT>{\"query\": \"q\", \"owner\": \"mallory\", \"user_id\": \"u-2\"}</ACTION_INPUT>",
			answerResponse,
		)
		_, err, stubs, _ := run(mock, &recorder{})
		Expect(err).NotTo(HaveOccurred())

		calls := stubs["search_papers"].calls()
		Expect(calls).To(HaveLen(1))
		Expect(calls[0].Owner).To(Equal("alice"))
		Expect(calls[0].Args).NotTo(HaveKey("owner"))
		Expect(calls[0].Args).NotTo(HaveKey("user_id"))
	})

	It("pauses with a question on ASK_USER", func() {
		mock := llm.NewMockProvider("<ASK_USER>Which venue should I prioritize?</ASK_USER>")
		handler := &recorder{}

		res, err, _, _ := run(mock, handler)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcome).To(Equal(agent.OutcomeNeedsInput))
		Expect(res.Question).To(Equal("Which venue should I prioritize?"))
		Expect(handler.all()).To(ContainElement("ask_user"))
	})

	It("detects an identical consecutive action and fails the run", func() {
		mock := llm.NewMockProvider(searchResponse, searchResponse)
		handler := &recorder{}

		res, err, stubs, _ := run(mock, handler)
		Expect(err).To(HaveOccurred())
		var loopErr *agent.LoopDetectedError
		Expect(err).To(BeAssignableToTypeOf(loopErr))
		Expect(res.Outcome).To(Equal(agent.OutcomeFailed))
		Expect(res.Answer).To(ContainSubstring("could not complete"))
		Expect(stubs["search_papers"].calls()).To(HaveLen(1), "the repeated call must not run")
		Expect(handler.all()).To(ContainElement("error"))
	})

	It("allows the same tool again with different arguments", func() {
		mock := llm.NewMockProvider(
			searchResponse,
			"<ACTION>search_papers</ACTION>\n<ACTION_INPUT>{\"query\": \"dictionary learning\"}</ACTION_INPUT>",
			answerResponse,
		)
		res, err, stubs, _ := run(mock, &recorder{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcome).To(Equal(agent.OutcomeAnswered))
		Expect(stubs["search_papers"].calls()).To(HaveLen(2))
	})

	It("fails with MaxIterationsError when the cap is exhausted", func() {
		mode.MaxIterations = 2
		mock := llm.NewMockProvider(
			searchResponse,
			"<ACTION>get_paper</ACTION>\n<ACTION_INPUT>{\"query\": \"p-1\"}</ACTION_INPUT>",
		)
		res, err, _, _ := run(mock, &recorder{})
		Expect(err).To(HaveOccurred())
		var capErr *agent.MaxIterationsError
		Expect(err).To(BeAssignableToTypeOf(capErr))
		Expect(res.Outcome).To(Equal(agent.OutcomeFailed))
		Expect(res.Steps).To(Equal(2))
	})

	It("folds a validation error back as an observation and continues", func() {
		mock := llm.NewMockProvider(
			// First call omits the required query field.
			"<ACTION>search_papers</ACTION>\n<ACTION_INPUT>{\"topic\": \"q\"}</ACTION_INPUT>",
			searchResponse,
			answerResponse,
		)
		handler := &recorder{}

		res, err, stubs, sess := run(mock, handler)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcome).To(Equal(agent.OutcomeAnswered))
		Expect(stubs["search_papers"].calls()).To(HaveLen(1), "handler runs only for the corrected call")

		var sawError bool
		for _, msg := range sess.History() {
			if strings.Contains(msg.Content, "ERROR:") && strings.Contains(msg.Content, "missing required field") {
				sawError = true
			}
		}
		Expect(sawError).To(BeTrue())
		Expect(handler.all()).To(ContainElement("tool_result:search_papers:error"))
	})

	It("gives up after repeated schema rejections", func() {
		badAction := func(field string) string {
			return "<ACTION>search_papers</ACTION>\n<ACTION_INPUT>{\"" + field + "\": 1}</ACTION_INPUT>"
		}
		mock := llm.NewMockProvider(badAction("a"), badAction("b"), badAction("c"))

		res, err, stubs, _ := run(mock, &recorder{})
		Expect(err).To(MatchError(ContainSubstring("rejected 3 times")))
		Expect(res.Outcome).To(Equal(agent.OutcomeFailed))
		Expect(stubs["search_papers"].calls()).To(BeEmpty())
	})

	It("repairs one malformed response, then fails on a second", func() {
		mock := llm.NewMockProvider(
			"I think I should search for papers.", // no decision block
			answerResponse,
		)
		res, err, _, _ := run(mock, &recorder{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcome).To(Equal(agent.OutcomeAnswered))
		Expect(mock.Calls()).To(Equal(2))

		mock = llm.NewMockProvider("still not a decision", "and neither is this")
		res, err, _, _ = run(mock, &recorder{})
		Expect(err).To(HaveOccurred())
		var parseErr *agent.ParseError
		Expect(err).To(BeAssignableToTypeOf(parseErr))
		Expect(res.Outcome).To(Equal(agent.OutcomeFailed))
	})

	It("sends the stop sequence and the mode prompt with every request", func() {
		mock := llm.NewMockProvider(answerResponse)
		_, err, _, _ := run(mock, &recorder{})
		Expect(err).NotTo(HaveOccurred())

		Expect(mock.Requests).To(HaveLen(1))
		req := mock.Requests[0]
		Expect(req.StopSequences).To(ConsistOf("___STOP___"))
		Expect(req.Messages[0].Role).To(Equal(llm.RoleSystem))
		Expect(req.Messages[0].Content).To(ContainSubstring("literature review assistant"))
		Expect(req.Messages[0].Content).To(ContainSubstring("search_papers"))
	})

	It("aborts when the context is cancelled", func() {
		registry, _ := newTestRegistry("search_papers", "get_paper", "save_note")
		set := newTestModes(registry, mode)
		sess := newSession()
		loop := agent.NewLoop(llm.NewMockProvider(answerResponse), "mock-model", registry, set, mode, sess, &recorder{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := loop.Run(ctx, "anything")
		Expect(err).To(HaveOccurred())
		Expect(res.Outcome).To(Equal(agent.OutcomeAborted))
	})

	Describe("delegation", func() {
		var research *agent.Mode

		BeforeEach(func() {
			research = &agent.Mode{
				Name:   "research",
				Prompt: "You find and rank sources.",
				Tools:  []string{"search_papers", "get_paper", "save_note"},
			}
			mode.Delegates = []string{"research"}
		})

		It("runs the subtask in the target mode and folds the answer back", func() {
			mock := llm.NewMockProvider(
				`<DELEGATE mode="research">Find three surveys on sparse autoencoders.</DELEGATE>`,
				searchResponse, // sub-loop step 1
				"<ANSWER>Found: survey A, survey B, survey C.</ANSWER>", // sub-loop step 2
				answerResponse, // parent resumes
			)
			handler := &recorder{}

			res, err, _, sess := run(mock, handler, mode, research)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(agent.OutcomeAnswered))

			var folded bool
			for _, msg := range sess.History() {
				if strings.Contains(msg.Content, "Result from 'research'") {
					folded = true
					Expect(msg.Content).To(ContainSubstring("survey A"))
				}
			}
			Expect(folded).To(BeTrue())

			events := handler.all()
			Expect(events).To(ContainElement("delegate_started:research"))
			Expect(events).To(ContainElement("tool_selected:research:search_papers"))
			Expect(events).To(ContainElement("delegate_completed:research:ok"))
			// The sub-loop's terminal message stays internal.
			Expect(events).To(HaveLen(12))
			Expect(events[len(events)-1]).To(Equal("message_end"))
		})

		It("allows a repeated tool call when a delegation ran in between", func() {
			mock := llm.NewMockProvider(
				searchResponse,
				`<DELEGATE mode="research">Rank what we have so far.</DELEGATE>`,
				"<ANSWER>Ranked: survey A first.</ANSWER>", // sub-loop
				searchResponse, // same tool, same args, but not consecutive
				answerResponse,
			)
			res, err, stubs, _ := run(mock, &recorder{}, mode, research)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(agent.OutcomeAnswered))
			Expect(stubs["search_papers"].calls()).To(HaveLen(2))
		})

		It("detects an identical back-to-back delegation and fails the run", func() {
			mock := llm.NewMockProvider(
				`<DELEGATE mode="research">Find surveys.</DELEGATE>`,
				"<ANSWER>Found two surveys.</ANSWER>", // sub-loop
				`<DELEGATE mode="research">Find surveys.</DELEGATE>`,
			)
			handler := &recorder{}

			res, err, _, _ := run(mock, handler, mode, research)
			Expect(err).To(HaveOccurred())
			var loopErr *agent.LoopDetectedError
			Expect(err).To(BeAssignableToTypeOf(loopErr))
			Expect(res.Outcome).To(Equal(agent.OutcomeFailed))
			count := 0
			for _, e := range handler.all() {
				if e == "delegate_started:research" {
					count++
				}
			}
			Expect(count).To(Equal(1), "the repeated delegation must not start")
		})

		It("treats delegation outside the allowed set as a failed step", func() {
			analysis := &agent.Mode{
				Name:   "analysis",
				Prompt: "You analyze papers.",
				Tools:  []string{"search_papers", "get_paper", "save_note"},
			}
			mock := llm.NewMockProvider(
				`<DELEGATE mode="analysis">analyze everything</DELEGATE>`,
				answerResponse,
			)
			handler := &recorder{}

			res, err, _, sess := run(mock, handler, mode, research, analysis)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(agent.OutcomeAnswered))
			Expect(handler.all()).NotTo(ContainElement("delegate_started:analysis"))

			var sawError bool
			for _, msg := range sess.History() {
				if strings.Contains(msg.Content, "may not delegate to 'analysis'") {
					sawError = true
				}
			}
			Expect(sawError).To(BeTrue())
		})

		It("converts a delegate's question into a failed subtask", func() {
			mock := llm.NewMockProvider(
				`<DELEGATE mode="research">Find surveys.</DELEGATE>`,
				"<ASK_USER>Which field?</ASK_USER>", // sub-loop has no user
				answerResponse,
			)
			handler := &recorder{}

			res, err, _, _ := run(mock, handler, mode, research)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(agent.OutcomeAnswered))
			Expect(handler.all()).To(ContainElement("delegate_completed:research:error"))
		})
	})
})
